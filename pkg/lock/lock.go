// Package lock provides the per-workspace mutual exclusion used by reconciliation runs.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the key
var ErrNotAcquired = errors.New("lock not acquired")

// ErrNotHeld is returned when releasing a lock that expired or was taken over
var ErrNotHeld = errors.New("lock not held")

type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring locks keyed by string
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// MemoryLocker is an in-process Locker for single-instance deployments
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	now   func() time.Time
	token uint64
}

type memoryEntry struct {
	token   uint64
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: map[string]memoryEntry{},
		now:  time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && (entry.expires.IsZero() || now.Before(entry.expires)) {
		return nil, ErrNotAcquired
	}

	l.token++
	entry := memoryEntry{token: l.token}
	if ttl > 0 {
		entry.expires = now.Add(ttl)
	}
	l.held[key] = entry
	return &memoryLock{locker: l, key: key, token: entry.token}, nil
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	token  uint64
}

func (m *memoryLock) Release(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	entry, ok := m.locker.held[m.key]
	if !ok || entry.token != m.token {
		return ErrNotHeld
	}
	delete(m.locker.held, m.key)
	return nil
}
