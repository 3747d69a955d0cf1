package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing or extending a lock this holder no
// longer owns, typically because its TTL expired.
var ErrNotHeld = errors.New("distlock: lock not held")

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if
	// successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose holder can push the TTL out.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// KeepAlive extends lock to ttl every ttl/3 until stop is called. The first
// failed extension is passed to onLost and ends the refresh. Locks without
// Extend, or a non-positive ttl, get a no-op.
func KeepAlive(ctx context.Context, lock DistLock, ttl time.Duration, onLost func(error)) (stop func()) {
	ext, ok := lock.(Extender)
	if !ok || ttl <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(ctx, ttl); err != nil {
					if ctx.Err() == nil && onLost != nil {
						onLost(err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Provider hands out a fresh lock instance per key.
type Provider func(key string, ttl time.Duration) DistLock

// NewProvider uses Redis when a client is given, so locks hold across
// processes. Otherwise locks are only exclusive within this process.
func NewProvider(redisClient *redis.Client) Provider {
	if redisClient != nil {
		return func(key string, ttl time.Duration) DistLock {
			return NewRedisLock(redisClient, key, ttl)
		}
	}
	table := NewLocalTable()
	return table.Lock
}

func ownerToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// =============================================================================
// In-process locks (single instance deployments, tests)
// =============================================================================

type localEntry struct {
	owner   string
	expires time.Time
}

// LocalTable is an in-memory lock table with TTL semantics matching the
// Redis lock.
type LocalTable struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

// NewLocalTable creates an empty lock table.
func NewLocalTable() *LocalTable {
	return &LocalTable{entries: make(map[string]localEntry), now: time.Now}
}

// Lock returns a lock on key in this table.
func (t *LocalTable) Lock(key string, ttl time.Duration) DistLock {
	return &LocalLock{table: t, key: key, owner: ownerToken(), ttl: ttl}
}

// LocalLock is one holder's handle on a LocalTable key.
type LocalLock struct {
	table *LocalTable
	key   string
	owner string
	ttl   time.Duration
}

// Acquire takes the key if it is free or its previous holder expired.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if e, ok := t.entries[l.key]; ok && e.owner != l.owner && (l.ttl <= 0 || now.Before(e.expires)) {
		return false, nil
	}
	t.entries[l.key] = localEntry{owner: l.owner, expires: now.Add(l.ttl)}
	return true, nil
}

// Release frees the key if this handle still owns it.
func (l *LocalLock) Release(_ context.Context) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[l.key]
	if !ok || e.owner != l.owner {
		return ErrNotHeld
	}
	delete(t.entries, l.key)
	return nil
}

// Extend moves the expiry to now+ttl if this handle still owns the key.
func (l *LocalLock) Extend(_ context.Context, ttl time.Duration) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[l.key]
	if !ok || e.owner != l.owner || (l.ttl > 0 && !now.Before(e.expires)) {
		return ErrNotHeld
	}
	t.entries[l.key] = localEntry{owner: l.owner, expires: now.Add(ttl)}
	return nil
}
