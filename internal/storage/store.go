package storage

import (
	"context"
	"strings"
	"time"

	"tracker/pkg/conn"
	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
)

// Backend names accepted by Open.
const (
	BackendGCS      = "gcs"
	BackendAzure    = "azblob"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ContentType is attached to every stored object.
const ContentType = "application/json"

// Store writes whole objects by key. A Put to an existing key overwrites it.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Namespace is the GCS bucket, Azure container or Postgres namespace column.
	Namespace string

	AzureConnectionString string
	AzureAccountName      string
	AzureAccountKey       string

	Postgres conn.Option

	Attempts   int
	RetryDelay time.Duration
}

// Open builds the configured backend, wrapped in Retry when Attempts > 1.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendGCS, "":
		store, err = NewGCS(ctx, cfg.Namespace)
	case BackendAzure:
		store, err = NewAzureBlob(cfg)
	case BackendPostgres:
		store, err = NewPostgres(ctx, cfg.Postgres, cfg.Namespace)
	case BackendMemory:
		store = NewMemory()
	default:
		return nil, errors.Wrapf(exception.ErrStorageUnknownBackend, "backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Attempts > 1 {
		return &Retry{Store: store, Attempts: cfg.Attempts, Delay: cfg.RetryDelay}, nil
	}
	return store, nil
}

func validateKey(key string) error {
	if key == "" {
		return exception.ErrStorageEmptyKey
	}
	return nil
}
