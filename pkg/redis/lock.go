package redis

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"

	"github.com/Ramsey-B/fern/pkg/lock"
)

// Locker implements lock.Locker on top of redislock so runs are exclusive across instances
type Locker struct {
	client    *Client
	locks     *redislock.Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &Locker{
		client:    client,
		locks:     redislock.New(client.rdb),
		keyPrefix: keyPrefix,
	}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lock, error) {
	held, err := l.locks.Obtain(ctx, l.keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, lock.ErrNotAcquired
	}
	if err != nil {
		return nil, err
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
	return &redisLock{held: held, client: l.client}, nil
}

type redisLock struct {
	held   *redislock.Lock
	client *Client
}

func (r *redisLock) Release(ctx context.Context) error {
	err := r.held.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return lock.ErrNotHeld
	}
	if err != nil {
		return err
	}
	r.client.logger.WithContext(ctx).Debugf("Released lock: %s", r.held.Key())
	return nil
}
