package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when the lock stays held past the wait budget.
var ErrLockNotObtained = errors.New("platform/cache: lock not obtained")

// Locker hands out Redis-backed mutual exclusion across processes.
type Locker struct {
	client *redislock.Client
}

// NewLocker wraps a Redis client.
func NewLocker(client redis.Scripter) *Locker {
	return &Locker{client: redislock.New(client)}
}

// Acquire obtains key for ttl, retrying for up to wait. The returned func releases it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	obtainCtx := ctx
	opts := &redislock.Options{}
	if wait > 0 {
		var cancel context.CancelFunc
		obtainCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
		opts.RetryStrategy = redislock.LinearBackoff(100 * time.Millisecond)
	}
	lock, err := l.client.Obtain(obtainCtx, key, ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
