package sink

import (
	"context"
	"time"

	"tracker/internal/feed"
	"tracker/internal/obs"
	"tracker/internal/storage"
	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// DefaultTimeout bounds a single object store write.
const DefaultTimeout = 30 * time.Second

// ErrorKind classifies why a record was not persisted.
type ErrorKind uint8

const (
	KindUnresolvedEntity ErrorKind = iota + 1
	KindInvalidTimestamp
	KindSerialize
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnresolvedEntity:
		return "unresolved_entity"
	case KindInvalidTimestamp:
		return "invalid_timestamp"
	case KindSerialize:
		return "serialize"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// StoreError is returned by Sink.Store. Key is empty when the key could not be derived.
type StoreError struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + " " + e.Key + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DeadLetter receives records whose write failed.
type DeadLetter interface {
	Append(key string, value []byte) error
}

// Config wires the sink to its object store.
type Config struct {
	Store      storage.Store
	Timeout    time.Duration
	DeadLetter DeadLetter
	Metrics    *obs.Metrics
}

// Sink derives the object key of a record and writes the serialized record.
type Sink struct {
	store      storage.Store
	timeout    time.Duration
	deadLetter DeadLetter
	metrics    *obs.Metrics
}

// New requires a Store. A zero Timeout means DefaultTimeout; DeadLetter and
// Metrics are optional.
func New(cfg Config) (*Sink, error) {
	if cfg.Store == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "sink store")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sink{
		store:      cfg.Store,
		timeout:    timeout,
		deadLetter: cfg.DeadLetter,
		metrics:    cfg.Metrics,
	}, nil
}

// Store persists rec at transactions/{entity}/{time}.json. A record without a
// resolvable entity or a numeric timestamp is never written.
func (s *Sink) Store(ctx context.Context, rec feed.Record) error {
	entity, err := Entity(rec)
	if err != nil {
		s.metrics.IncDrop(obs.DropUnresolvedEntity)
		return &StoreError{Kind: KindUnresolvedEntity, Err: err}
	}
	ts, err := Timestamp(rec)
	if err != nil {
		s.metrics.IncDrop(obs.DropInvalidTimestamp)
		return &StoreError{Kind: KindInvalidTimestamp, Err: err}
	}

	key := Key(entity, ts)
	value, err := Serialize(rec)
	if err != nil {
		s.metrics.IncDrop(obs.DropSerialize)
		return &StoreError{Kind: KindSerialize, Key: key, Err: err}
	}

	if err := s.put(ctx, key, value); err != nil {
		s.metrics.IncDrop(obs.DropStore)
		s.spill(key, value)
		return &StoreError{Kind: KindStore, Key: key, Err: errors.Wrap(exception.ErrSinkStore, err.Error())}
	}
	return nil
}

func (s *Sink) put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.store.Put(ctx, key, value); err != nil {
		return err
	}
	s.metrics.ObserveStored(time.Since(start))
	return nil
}

func (s *Sink) spill(key string, value []byte) {
	if s.deadLetter == nil {
		return
	}
	if err := s.deadLetter.Append(key, value); err != nil {
		logs.Errorf("dead-letter %s, err: %+v", key, err)
		return
	}
	s.metrics.IncDeadLettered()
}
