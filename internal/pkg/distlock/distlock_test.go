package distlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_Exclusive(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "upload:meta:vip", time.Minute)
	b := NewRedisLock(client, "upload:meta:vip", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld, "non-owner cannot release")
	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiryAndExtend(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", 10*time.Second)
	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cdp:lock:k", a.Key())

	require.NoError(t, a.Extend(ctx, time.Minute))
	mr.FastForward(30 * time.Second)
	assert.True(t, mr.Exists("cdp:lock:k"))

	mr.FastForward(time.Minute)
	assert.ErrorIs(t, a.Extend(ctx, time.Minute), ErrNotHeld)

	b := NewRedisLock(client, "k", 10*time.Second)
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock_Exclusive(t *testing.T) {
	table := NewLocalTable()
	ctx := context.Background()

	a := table.Lock("k", time.Minute)
	b := table.Lock("k", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx), ErrNotHeld)
	require.NoError(t, a.Release(ctx))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLock_Expires(t *testing.T) {
	table := NewLocalTable()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return now }
	ctx := context.Background()

	a := table.Lock("k", time.Minute)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	b := table.Lock("k", time.Minute)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "expired holder does not block")
	assert.ErrorIs(t, a.Release(ctx), ErrNotHeld)
}

func TestNewProvider(t *testing.T) {
	_, client := newRedis(t)
	assert.IsType(t, &RedisLock{}, NewProvider(client)("k", time.Second))
	assert.IsType(t, &LocalLock{}, NewProvider(nil)("k", time.Second))
}

func TestLocalLock_Extend(t *testing.T) {
	table := NewLocalTable()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table.now = func() time.Time { return now }
	ctx := context.Background()

	a := table.Lock("k", time.Minute).(*LocalLock)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	now = now.Add(50 * time.Second)
	require.NoError(t, a.Extend(ctx, time.Minute))

	now = now.Add(50 * time.Second)
	b := table.Lock("k", time.Minute)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "extended lock is still held")

	now = now.Add(time.Minute)
	assert.ErrorIs(t, a.Extend(ctx, time.Minute), ErrNotHeld)
}

// countingLock records Extend calls and fails them once failAfter is hit.
type countingLock struct {
	mu        sync.Mutex
	extends   int
	failAfter int
}

func (l *countingLock) Acquire(context.Context) (bool, error) { return true, nil }
func (l *countingLock) Release(context.Context) error         { return nil }

func (l *countingLock) Extend(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	if l.failAfter > 0 && l.extends >= l.failAfter {
		return ErrNotHeld
	}
	return nil
}

func (l *countingLock) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends
}

func TestKeepAlive_ExtendsUntilStopped(t *testing.T) {
	lock := &countingLock{}
	stop := KeepAlive(context.Background(), lock, 30*time.Millisecond, nil)

	assert.Eventually(t, func() bool { return lock.count() >= 3 }, time.Second, 5*time.Millisecond)
	stop()
	n := lock.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, lock.count(), "no extensions after stop")
}

func TestKeepAlive_ReportsLostLock(t *testing.T) {
	lock := &countingLock{failAfter: 2}
	lost := make(chan error, 1)
	stop := KeepAlive(context.Background(), lock, 15*time.Millisecond, func(err error) { lost <- err })
	defer stop()

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, ErrNotHeld)
	case <-time.After(time.Second):
		t.Fatal("lost lock was not reported")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, lock.count(), "refresh ends after the first failure")
}

func TestKeepAlive_NoExtender(t *testing.T) {
	stop := KeepAlive(context.Background(), noExtend{}, time.Millisecond, func(error) { t.Fatal("unexpected") })
	stop()
}

type noExtend struct{}

func (noExtend) Acquire(context.Context) (bool, error) { return true, nil }
func (noExtend) Release(context.Context) error         { return nil }
