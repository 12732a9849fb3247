package storage

import (
	"context"

	"tracker/pkg/exception"

	gcs "cloud.google.com/go/storage"
	"github.com/yanun0323/errors"
)

// GCS writes objects into a Cloud Storage bucket using ambient credentials.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
}

// NewGCS opens a client for bucket. The bucket is not checked for existence.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.Wrap(exception.ErrStorageEmptyNamespace, "gcs bucket")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "new gcs client")
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

// Put writes value to key as application/json, replacing any existing object.
func (g *GCS) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = ContentType
	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "write gs://%s/%s", g.name, key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "close gs://%s/%s", g.name, key)
	}
	return nil
}

func (g *GCS) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
