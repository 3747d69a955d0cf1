package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ignite/cdp-activation/internal/identity"
	"github.com/ignite/cdp-activation/internal/pkg/httpretry"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/pkg/telemetry"
)

// Uploader drives one client through authenticate, create audience and
// batched upload.
type Uploader struct {
	client       Client
	policy       httpretry.Policy
	dryRun       bool
	timeout      time.Duration
	nameTemplate string
	now          func() time.Time
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithPolicy sets the retry policy wrapped around every platform call.
func WithPolicy(p httpretry.Policy) UploaderOption {
	return func(u *Uploader) { u.policy = p }
}

// WithDryRun skips every platform call and reports synthesized success.
func WithDryRun(dryRun bool) UploaderOption {
	return func(u *Uploader) { u.dryRun = dryRun }
}

// WithTimeout bounds a whole UploadSegment call, retries and backoff waits
// included. Zero means no bound beyond the caller's context.
func WithTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) { u.timeout = d }
}

// WithNameTemplate sets the Liquid audience name template.
func WithNameTemplate(tpl string) UploaderOption {
	return func(u *Uploader) { u.nameTemplate = tpl }
}

// WithUploadClock sets the clock used for audience names.
func WithUploadClock(now func() time.Time) UploaderOption {
	return func(u *Uploader) { u.now = now }
}

// NewUploader creates an uploader for client.
func NewUploader(client Client, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		client:       client,
		policy:       httpretry.DefaultPolicy(),
		nameTemplate: DefaultAudienceNameTemplate,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}

	onRetry := u.policy.OnRetry
	u.policy.OnRetry = func(op string, attempt int, err error, delay time.Duration) {
		telemetry.RetriesTotal.WithLabelValues(op).Inc()
		if onRetry != nil {
			onRetry(op, attempt, err, delay)
		}
	}
	return u
}

// Client returns the wrapped platform client.
func (u *Uploader) Client() Client { return u.client }

// UploadSegment uploads users as a new audience named after segment. It
// never returns an error; failures are reported in the result.
func (u *Uploader) UploadSegment(ctx context.Context, segment string, users []identity.HashedUser, description string) UploadResult {
	platform := u.client.Platform()
	res := UploadResult{Platform: platform, Simulated: u.client.Simulated()}

	ctx, span := telemetry.Tracer("activation").Start(ctx, "activation.upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("segment", segment),
		attribute.Int("users", len(users)),
	)
	defer func() {
		telemetry.UploadsTotal.WithLabelValues(string(platform), res.Outcome()).Inc()
		if !res.DryRun {
			telemetry.UploadedUsersTotal.WithLabelValues(string(platform)).Add(float64(res.UploadedCount))
		}
		if !res.Success {
			span.SetStatus(codes.Error, res.ErrorMessage)
		}
	}()

	if len(users) == 0 {
		res.ErrorMessage = "no users to upload"
		return res
	}

	name, err := RenderAudienceName(u.nameTemplate, segment, platform, u.now())
	if err != nil {
		res.ErrorMessage = err.Error()
		return res
	}
	res.AudienceName = name

	if u.dryRun {
		logger.Info("activation: dry-run upload", "platform", platform, "segment", segment, "users", len(users))
		res.Success = true
		res.DryRun = true
		res.Simulated = false
		res.MatchedCount = len(users)
		res.UploadedCount = len(users)
		return res
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	if err := u.policy.Do(ctx, string(platform)+".authenticate", u.client.Authenticate); err != nil {
		res.ErrorMessage = "authentication failed: " + err.Error()
		logger.Error("activation: authentication failed", "platform", platform, "error", err)
		return res
	}

	audienceID, err := httpretry.Call(ctx, u.policy, string(platform)+".create_audience", func(ctx context.Context) (string, error) {
		return u.client.CreateAudience(ctx, name, description)
	})
	if err != nil {
		res.ErrorMessage = createFailure(err)
		logger.Error("activation: create audience failed", "platform", platform, "audience", name, "error", err)
		return res
	}
	res.AudienceID = audienceID
	span.SetAttributes(attribute.String("audience_id", audienceID))

	res.MatchedCount = len(nonEmpty(users))
	res.Batches = u.UploadUsers(ctx, audienceID, users)

	var failed []BatchResult
	for _, b := range res.Batches {
		res.UploadedCount += b.Uploaded
		if b.Err != "" {
			failed = append(failed, b)
			res.FailedCount += b.Size
		}
	}
	if len(failed) > 0 {
		res.ErrorMessage = fmt.Sprintf("%d of %d batches failed: %s", len(failed), len(res.Batches), failed[0].Err)
		logger.Warn("activation: upload finished with failed batches",
			"platform", platform, "audience_id", audienceID,
			"uploaded", res.UploadedCount, "failed", res.FailedCount)
		return res
	}

	res.Success = true
	logger.Info("activation: upload complete", "platform", platform, "audience_id", audienceID, "uploaded", res.UploadedCount)
	return res
}

// UploadUsers splits users into batches of the client's batch size and
// uploads them in order, each under the retry policy. A failed batch is
// recorded and the next one is attempted; once ctx is done the remaining
// batches fail without a call.
func (u *Uploader) UploadUsers(ctx context.Context, audienceID string, users []identity.HashedUser) []BatchResult {
	platform := string(u.client.Platform())
	size := u.client.BatchSize()
	if size <= 0 {
		size = max(len(users), 1)
	}

	results := make([]BatchResult, 0, (len(users)+size-1)/size)
	for lo, idx := 0, 0; lo < len(users); lo, idx = lo+size, idx+1 {
		batch := users[lo:min(lo+size, len(users))]
		br := BatchResult{Index: idx, Size: len(nonEmpty(batch))}

		if err := ctx.Err(); err != nil {
			br.Err = err.Error()
			results = append(results, br)
			telemetry.BatchesTotal.WithLabelValues(platform, "failed").Inc()
			continue
		}

		n, err := httpretry.Call(ctx, u.policy, platform+".upload_batch", func(ctx context.Context) (int, error) {
			return u.client.UploadBatch(ctx, audienceID, batch)
		})
		if err != nil {
			br.Err = err.Error()
			telemetry.BatchesTotal.WithLabelValues(platform, "failed").Inc()
			logger.Warn("activation: batch failed", "platform", platform, "batch", idx, "size", br.Size, "error", err)
		} else {
			br.Uploaded = n
			telemetry.BatchesTotal.WithLabelValues(platform, "success").Inc()
			logger.Debug("activation: batch uploaded", "platform", platform, "batch", idx, "uploaded", n)
		}
		results = append(results, br)
	}
	return results
}

func createFailure(err error) string {
	var rl *httpretry.RateLimitError
	if errors.As(err, &rl) {
		return "Rate limit: " + err.Error()
	}
	return "create audience failed: " + err.Error()
}
