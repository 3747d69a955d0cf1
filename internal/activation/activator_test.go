package activation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/ledger"
	"github.com/ignite/cdp-activation/internal/pkg/distlock"
	"github.com/ignite/cdp-activation/internal/records"
	"github.com/ignite/cdp-activation/internal/segmentation"
)

// activationFixture has four premium customers, three of them with email
// consent, and one regular customer.
func activationFixture(t *testing.T) (*segmentation.Engine, *segmentation.Catalog) {
	t.Helper()
	customers := []domain.CustomerProfile{
		{CustomerID: "C1", Email: "a@example.com", EmailOptedIn: true, Segment: domain.TierPremium},
		{CustomerID: "C2", Email: "b@example.com", Phone: "5321234567", EmailOptedIn: true, Segment: domain.TierPremium},
		{CustomerID: "C3", Email: "c@example.com", EmailOptedIn: true, Segment: domain.TierPremium},
		{CustomerID: "C4", Email: "d@example.com", Segment: domain.TierPremium},
		{CustomerID: "C5", Email: "e@example.com", EmailOptedIn: true, Segment: domain.TierRegular},
	}
	engine := segmentation.NewEngine(
		records.NewHolder(records.New(customers, nil, nil)),
		segmentation.WithClock(fixedClock),
	)
	catalog, err := segmentation.NewCatalog(segmentation.Definition{
		Key:         "premium",
		Name:        "Premium",
		Description: "premium tier",
		Logic:       segmentation.LogicAnd,
		Conditions: []segmentation.Condition{
			{Field: "segment", Operator: "==", Value: "premium"},
		},
	})
	require.NoError(t, err)
	return engine, catalog
}

func newTestActivator(t *testing.T, locks distlock.Provider, rec ledger.Recorder, dryRun bool, clients ...Client) *Activator {
	engine, catalog := activationFixture(t)
	return NewActivator(engine, catalog, identity.NewEncoder(nil, ""), clients, locks, rec, Settings{
		Policy:  instantPolicy(2),
		DryRun:  dryRun,
		Timeout: time.Minute,
		LockTTL: time.Minute,
		Now:     fixedClock,
	})
}

func TestActivate_UploadsToEveryPlatform(t *testing.T) {
	meta := &fakeClient{platform: domain.PlatformMeta, batchSize: 2}
	tiktok := &fakeClient{platform: domain.PlatformTikTok, batchSize: 10}
	mem := ledger.NewMemory()
	a := newTestActivator(t, distlock.NewProvider(nil), mem, false, meta, tiktok)

	run, err := a.Activate(context.Background(), Request{SegmentKey: "premium"})
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 4, run.Matched)
	assert.Equal(t, 3, run.Hashed, "C4 has no email consent")
	require.Len(t, run.Results, 2)
	assert.Equal(t, domain.PlatformMeta, run.Results[0].Platform)
	assert.Equal(t, domain.PlatformTikTok, run.Results[1].Platform)
	for _, r := range run.Results {
		assert.True(t, r.Success, r.ErrorMessage)
		assert.Equal(t, 3, r.UploadedCount)
	}
	assert.Len(t, meta.batches, 2)
	assert.Len(t, tiktok.batches, 1)

	entries, err := a.History(context.Background(), "premium", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestActivate_DryRunFromRequest(t *testing.T) {
	meta := &fakeClient{platform: domain.PlatformMeta, batchSize: 10}
	a := newTestActivator(t, nil, nil, false, meta)

	run, err := a.Activate(context.Background(), Request{SegmentKey: "premium", DryRun: true})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].DryRun)
	assert.Equal(t, 3, run.Results[0].UploadedCount)
	assert.Zero(t, meta.authCalls)
}

func TestActivate_HeldLockReportsInProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locks := distlock.NewProvider(client)

	held := locks("upload:meta:premium", time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	meta := &fakeClient{platform: domain.PlatformMeta, batchSize: 10}
	google := &fakeClient{platform: domain.PlatformGoogle, batchSize: 10}
	a := newTestActivator(t, locks, nil, false, meta, google)

	run, err := a.Activate(context.Background(), Request{SegmentKey: "premium"})
	require.NoError(t, err)
	require.Len(t, run.Results, 2)

	assert.False(t, run.Results[0].Success)
	assert.Equal(t, ErrUploadInProgress.Error(), run.Results[0].ErrorMessage)
	assert.Zero(t, meta.authCalls)
	assert.True(t, run.Results[1].Success, run.Results[1].ErrorMessage)

	// released after the upload
	assert.False(t, mr.Exists("cdp:lock:upload:google:premium"))
	assert.True(t, mr.Exists("cdp:lock:upload:meta:premium"))
}

// refreshLock counts extensions and releases of one upload lock.
type refreshLock struct {
	mu       sync.Mutex
	extends  int
	released bool
}

func (l *refreshLock) Acquire(context.Context) (bool, error) { return true, nil }

func (l *refreshLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *refreshLock) Extend(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

func TestActivate_LongUploadKeepsLock(t *testing.T) {
	lock := &refreshLock{}
	var gotTTL time.Duration
	locks := func(_ string, ttl time.Duration) distlock.DistLock {
		gotTTL = ttl
		return lock
	}

	engine, catalog := activationFixture(t)
	slow := &fakeClient{platform: domain.PlatformMeta, batchSize: 10, block: true}
	a := NewActivator(engine, catalog, identity.NewEncoder(nil, ""), []Client{slow}, locks, nil, Settings{
		Policy:  instantPolicy(1),
		Timeout: 150 * time.Millisecond,
		LockTTL: 30 * time.Millisecond,
		Now:     fixedClock,
	})

	run, err := a.Activate(context.Background(), Request{SegmentKey: "premium"})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.False(t, run.Results[0].Success, "upload ran into its timeout")

	assert.Equal(t, 30*time.Millisecond, gotTTL)
	lock.mu.Lock()
	defer lock.mu.Unlock()
	assert.GreaterOrEqual(t, lock.extends, 2, "lock refreshed while the upload outlived its TTL")
	assert.True(t, lock.released)
}

func TestActivate_ValidationErrors(t *testing.T) {
	a := newTestActivator(t, nil, nil, false, &fakeClient{platform: domain.PlatformMeta, batchSize: 10})

	_, err := a.Activate(context.Background(), Request{SegmentKey: "nope"})
	assert.ErrorIs(t, err, segmentation.ErrUnknownSegment)

	_, err = a.Activate(context.Background(), Request{SegmentKey: "premium", Platforms: []domain.Platform{domain.PlatformTikTok}})
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	_, err = a.Status(context.Background(), domain.PlatformGoogle, "x")
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	st, err := a.Status(context.Background(), domain.PlatformMeta, "aud")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, []domain.Platform{domain.PlatformMeta}, a.Platforms())
}

func TestActivate_DataUnavailable(t *testing.T) {
	_, catalog := activationFixture(t)
	engine := segmentation.NewEngine(records.NewHolder(nil))
	a := NewActivator(engine, catalog, identity.NewEncoder(nil, ""),
		[]Client{&fakeClient{platform: domain.PlatformMeta, batchSize: 10}}, nil, nil, Settings{})

	_, err := a.Activate(context.Background(), Request{SegmentKey: "premium"})
	assert.ErrorIs(t, err, records.ErrDataUnavailable)
}
