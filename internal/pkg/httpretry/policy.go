// Package httpretry provides an explicit retry policy with exponential
// backoff for resilient external API calls, plus the error taxonomy and HTTP
// response classification the policy acts on.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/cdp-activation/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it; tests substitute httptest-backed clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Policy decides how often and how long to wait between attempts of one
// operation.
//
//   - *RateLimitError waits RetryAfter when set, else BaseDelay * 2^attempt.
//   - *RetryableError waits BaseDelay * 2^attempt, capped at MaxDelay.
//   - any other error is returned at once.
//
// When attempts are exhausted the last error is returned. The context bounds
// the whole loop, waits included.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter randomizes each backoff in [delay/2, delay].
	Jitter bool
	// Sleep waits for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(op string, attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns 3 attempts with a 1s base delay and a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, abortErr(op, err, lastErr)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		delay, retry := p.backoff(attempt, err)
		if !retry {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(op, attempt+1, err, delay)
		}
		logger.Warn("httpretry: retrying",
			"op", op, "attempt", attempt+1, "max_attempts", attempts,
			"delay", delay.String(), "error", err)

		if err := p.sleep(ctx, delay); err != nil {
			return zero, abortErr(op, err, lastErr)
		}
	}
	return zero, lastErr
}

// backoff returns the wait before the next attempt and whether err is
// retryable at all.
func (p Policy) backoff(attempt int, err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		if rl.RetryAfter > 0 {
			return rl.RetryAfter, true
		}
		return p.exponential(attempt), true
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return p.exponential(attempt), true
	}
	return 0, false
}

// exponential returns BaseDelay * 2^attempt, capped at MaxDelay.
func (p Policy) exponential(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter && d > 0 {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func abortErr(op string, ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w (last error: %w)", op, ctxErr, lastErr)
}
