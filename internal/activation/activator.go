package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/ledger"
	"github.com/ignite/cdp-activation/internal/pkg/distlock"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/segmentation"
)

// ErrUploadInProgress is reported when another upload of the same segment
// to the same platform holds the lock.
var ErrUploadInProgress = errors.New("upload already in progress")

// Settings are the pipeline-wide knobs of an Activator.
type Settings struct {
	Policy       httpretry.Policy
	DryRun       bool
	Timeout      time.Duration
	LockTTL      time.Duration
	NameTemplate string
	Consent      identity.Consent
	// Now defaults to time.Now.
	Now func() time.Time
}

// Request asks for one segment to be uploaded. Empty Platforms means every
// configured client.
type Request struct {
	SegmentKey string            `json:"segment"`
	Platforms  []domain.Platform `json:"platforms"`
	DryRun     bool              `json:"dry_run"`
}

// Activation is the outcome of one Activate call.
type Activation struct {
	RunID      string         `json:"run_id"`
	Segment    string         `json:"segment"`
	Name       string         `json:"name"`
	Matched    int            `json:"matched"`
	Hashed     int            `json:"hashed"`
	Results    []UploadResult `json:"results"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Activator runs a segment, hashes its members and uploads them to several
// platforms concurrently.
type Activator struct {
	engine   *segmentation.Engine
	catalog  *segmentation.Catalog
	encoder  *identity.Encoder
	clients  map[domain.Platform]Client
	order    []domain.Platform
	locks    distlock.Provider
	ledger   ledger.Recorder
	settings Settings
	now      func() time.Time
}

// NewActivator wires the pipeline. locks and rec may be nil.
func NewActivator(
	engine *segmentation.Engine,
	catalog *segmentation.Catalog,
	encoder *identity.Encoder,
	clients []Client,
	locks distlock.Provider,
	rec ledger.Recorder,
	settings Settings,
) *Activator {
	if rec == nil {
		rec = ledger.Nop{}
	}
	if settings.Policy.MaxAttempts == 0 {
		settings.Policy = httpretry.DefaultPolicy()
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 10 * time.Minute
	}
	if settings.Consent == "" {
		settings.Consent = identity.ConsentEmail
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	a := &Activator{
		engine:   engine,
		catalog:  catalog,
		encoder:  encoder,
		clients:  make(map[domain.Platform]Client, len(clients)),
		locks:    locks,
		ledger:   rec,
		settings: settings,
		now:      settings.Now,
	}
	for _, c := range clients {
		if _, dup := a.clients[c.Platform()]; !dup {
			a.order = append(a.order, c.Platform())
		}
		a.clients[c.Platform()] = c
	}
	return a
}

// Platforms lists the configured platforms in registration order.
func (a *Activator) Platforms() []domain.Platform {
	return append([]domain.Platform(nil), a.order...)
}

// Client returns the configured client for p.
func (a *Activator) Client(p domain.Platform) (Client, error) {
	c, ok := a.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, p)
	}
	return c, nil
}

// Status queries an audience on platform p.
func (a *Activator) Status(ctx context.Context, p domain.Platform, audienceID string) (AudienceStatus, error) {
	c, err := a.Client(p)
	if err != nil {
		return AudienceStatus{}, err
	}
	return c.GetAudienceStatus(ctx, audienceID), nil
}

// History lists recorded uploads of a segment, newest first.
func (a *Activator) History(ctx context.Context, segmentKey string, limit int) ([]ledger.Entry, error) {
	return a.ledger.List(ctx, segmentKey, limit)
}

// Activate uploads one segment. Unknown segments and platforms and missing
// data are errors; anything that goes wrong on a platform is reported in
// that platform's UploadResult.
func (a *Activator) Activate(ctx context.Context, req Request) (*Activation, error) {
	seg, err := a.catalog.Get(req.SegmentKey)
	if err != nil {
		return nil, err
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = a.order
	}
	clients := make([]Client, 0, len(platforms))
	for _, p := range platforms {
		c, err := a.Client(p)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	run := &Activation{
		RunID:     uuid.NewString(),
		Segment:   seg.Key(),
		Name:      seg.Definition().Name,
		StartedAt: a.now(),
	}

	res, err := a.engine.Run(ctx, seg)
	if err != nil {
		return nil, err
	}
	users := a.encoder.HashCustomers(res.Customers, a.settings.Consent)
	run.Matched = len(res.Customers)
	run.Hashed = len(users)

	logger.Info("activation: starting",
		"run_id", run.RunID, "segment", seg.Key(),
		"matched", run.Matched, "hashed", run.Hashed, "platforms", len(clients))

	dryRun := a.settings.DryRun || req.DryRun
	results := make([]UploadResult, len(clients))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		g.Go(func() error {
			results[i] = a.uploadLocked(gctx, c, seg, users, dryRun)
			a.record(gctx, seg.Key(), results[i])
			return nil
		})
	}
	_ = g.Wait()

	run.Results = results
	run.FinishedAt = a.now()
	return run, nil
}

func (a *Activator) uploadLocked(ctx context.Context, c Client, seg *segmentation.Segment, users []identity.HashedUser, dryRun bool) UploadResult {
	if a.locks != nil && !dryRun {
		lock := a.locks(fmt.Sprintf("upload:%s:%s", c.Platform(), seg.Key()), a.settings.LockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			logger.Error("activation: lock acquire failed", "platform", c.Platform(), "segment", seg.Key(), "error", err)
			return UploadResult{Platform: c.Platform(), ErrorMessage: "lock: " + err.Error()}
		}
		if !ok {
			return UploadResult{Platform: c.Platform(), ErrorMessage: ErrUploadInProgress.Error()}
		}
		defer func() {
			// the upload may have outlived ctx; release on a fresh one
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
				logger.Warn("activation: lock release failed", "platform", c.Platform(), "segment", seg.Key(), "error", err)
			}
		}()
		stop := distlock.KeepAlive(ctx, lock, a.settings.LockTTL, func(err error) {
			logger.Error("activation: upload lock lost", "platform", c.Platform(), "segment", seg.Key(), "error", err)
		})
		defer stop()
	}

	u := NewUploader(c,
		WithPolicy(a.settings.Policy),
		WithDryRun(dryRun),
		WithTimeout(a.settings.Timeout),
		WithNameTemplate(a.settings.NameTemplate),
		WithUploadClock(a.now),
	)
	return u.UploadSegment(ctx, seg.Key(), users, seg.Definition().Description)
}

func (a *Activator) record(ctx context.Context, segmentKey string, r UploadResult) {
	e := ledger.Entry{
		SegmentKey:    segmentKey,
		Platform:      string(r.Platform),
		AudienceID:    r.AudienceID,
		AudienceName:  r.AudienceName,
		Success:       r.Success,
		MatchedCount:  r.MatchedCount,
		UploadedCount: r.UploadedCount,
		FailedCount:   r.FailedCount,
		DryRun:        r.DryRun,
		Simulated:     r.Simulated,
		ErrorMessage:  r.ErrorMessage,
		RecordedAt:    a.now(),
	}
	if err := a.ledger.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("activation: ledger record failed", "platform", r.Platform, "segment", segmentKey, "error", err)
	}
}
