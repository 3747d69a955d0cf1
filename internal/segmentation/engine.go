package segmentation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/telemetry"
	"github.com/ignite/cdp-activation/internal/records"
)

const chunkSize = 512

// Engine runs compiled segments over the current record snapshot.
type Engine struct {
	holder  *records.Holder
	now     func() time.Time
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the reference clock for day windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWorkers bounds how many population chunks are evaluated at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine creates a segmentation engine reading from holder.
func NewEngine(holder *records.Holder, opts ...Option) *Engine {
	e := &Engine{
		holder:  holder,
		now:     time.Now,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one segment run. Stats are computed fresh on
// every run.
type Result struct {
	Segment     Definition               `json:"segment"`
	Customers   []domain.CustomerProfile `json:"-"`
	Stats       Stats                    `json:"stats"`
	Population  int                      `json:"population"`
	EvaluatedAt time.Time                `json:"evaluated_at"`
	DurationMs  int64                    `json:"duration_ms"`
}

// ==========================================
// SEGMENT EXECUTION
// ==========================================

// Run evaluates seg for every customer and returns the members in population
// order. One snapshot and one reference instant are used for the whole run.
func (e *Engine) Run(ctx context.Context, seg *Segment) (*Result, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("segmentation").Start(ctx, "segment.run")
	defer span.End()
	span.SetAttributes(attribute.String("segment.key", seg.Key()))

	store, err := e.holder.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no data")
		return nil, err
	}
	now := e.now()
	ev := NewEvaluator(store, now)

	customers := store.Customers()
	matched := make([]bool, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for lo := 0; lo < len(customers); lo += chunkSize {
		hi := min(lo+chunkSize, len(customers))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				matched[i] = ev.Matches(seg, customers[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return nil, fmt.Errorf("run segment %s: %w", seg.Key(), err)
	}

	members := make([]domain.CustomerProfile, 0)
	for i, ok := range matched {
		if ok {
			members = append(members, customers[i])
		}
	}

	res := &Result{
		Segment:     seg.Definition(),
		Customers:   members,
		Stats:       ComputeStats(store, members),
		Population:  len(customers),
		EvaluatedAt: now,
		DurationMs:  time.Since(start).Milliseconds(),
	}

	telemetry.SegmentRunsTotal.WithLabelValues(seg.Key()).Inc()
	telemetry.SegmentRunDuration.WithLabelValues(seg.Key()).Observe(time.Since(start).Seconds())
	telemetry.SegmentMatches.WithLabelValues(seg.Key()).Set(float64(len(members)))
	span.SetAttributes(
		attribute.Int("segment.population", len(customers)),
		attribute.Int("segment.matched", len(members)),
	)
	return res, nil
}

// RunDefinition compiles def and runs it.
func (e *Engine) RunDefinition(ctx context.Context, def Definition) (*Result, error) {
	seg, err := Compile(def)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, seg)
}

// Explain reports each condition's outcome for one customer, for debugging
// why a customer is or is not a member.
func (e *Engine) Explain(seg *Segment, customerID string) ([]bool, bool, error) {
	store, err := e.holder.Load()
	if err != nil {
		return nil, false, err
	}
	c, ok := store.Customer(customerID)
	if !ok {
		return nil, false, fmt.Errorf("customer %s: %w", customerID, records.ErrNotFound)
	}
	ev := NewEvaluator(store, e.now())
	return ev.ConditionResults(seg, c), ev.Matches(seg, c), nil
}
