package storage

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Retry retries a failed Put up to Attempts times in total, waiting Delay in between.
type Retry struct {
	Store    Store
	Attempts int
	Delay    time.Duration
}

func (r *Retry) Put(ctx context.Context, key string, value []byte) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = r.Store.Put(ctx, key, value); err == nil {
			return nil
		}
		if i == attempts || ctx.Err() != nil {
			break
		}
		logs.Warnf("put %s failed (attempt %d/%d), err: %+v", key, i, attempts, err)
		if !wait(ctx, r.Delay) {
			break
		}
	}
	return errors.Wrapf(err, "put %s", key)
}

func (r *Retry) Close() error {
	return r.Store.Close()
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
