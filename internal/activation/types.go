// Package activation uploads hashed audiences to advertising platforms.
//
// Every platform implements Client. Uploader sequences authenticate, create
// audience and batched upload for one client under a retry policy, and
// Activator fans a segment out to several platforms at once.
package activation

import (
	"context"
	"fmt"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/identity"
)

// Batch sizes each platform accepts per call.
const (
	MetaBatchSize   = 10000
	GoogleBatchSize = 100000
	TikTokBatchSize = 10000
)

// Audience status values that are not platform specific.
const (
	StatusNotFound = "NOT_FOUND"
	StatusUnknown  = "UNKNOWN"
	StatusReady    = "READY"
)

// Client is one platform integration. Implementations are safe for
// concurrent use.
type Client interface {
	Platform() domain.Platform
	BatchSize() int
	// Simulated reports that calls synthesize results instead of reaching
	// the platform, because credentials are missing.
	Simulated() bool

	Authenticate(ctx context.Context) error
	CreateAudience(ctx context.Context, name, description string) (string, error)
	// UploadBatch sends one batch and returns how many users the platform
	// accepted.
	UploadBatch(ctx context.Context, audienceID string, batch []identity.HashedUser) (int, error)
	// GetAudienceStatus never fails; unresolvable audiences report
	// StatusNotFound or StatusUnknown.
	GetAudienceStatus(ctx context.Context, audienceID string) AudienceStatus
}

// AudienceStatus is a read-only snapshot of a remote audience.
type AudienceStatus struct {
	Platform domain.Platform `json:"platform"`
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Status   string          `json:"status"`
	Size     int64           `json:"size"`
	Error    string          `json:"error,omitempty"`
}

// BatchResult is the outcome of one batch upload.
type BatchResult struct {
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Uploaded int    `json:"uploaded"`
	Err      string `json:"error,omitempty"`
}

// UploadResult is the outcome of uploading one audience to one platform.
type UploadResult struct {
	Success       bool            `json:"success"`
	Platform      domain.Platform `json:"platform"`
	AudienceID    string          `json:"audience_id,omitempty"`
	AudienceName  string          `json:"audience_name,omitempty"`
	MatchedCount  int             `json:"matched_count"`
	UploadedCount int             `json:"uploaded_count"`
	FailedCount   int             `json:"failed_count"`
	Batches       []BatchResult   `json:"batches,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	DryRun        bool            `json:"dry_run"`
	Simulated     bool            `json:"simulated"`
}

func (r UploadResult) String() string {
	if !r.Success {
		return fmt.Sprintf("FAILED %s: %s", r.Platform, r.ErrorMessage)
	}
	prefix := ""
	switch {
	case r.DryRun:
		prefix = "[DRY-RUN] "
	case r.Simulated:
		prefix = "[SIMULATED] "
	}
	return fmt.Sprintf("%sOK %s: %d users uploaded", prefix, r.Platform, r.UploadedCount)
}

// Outcome is the metrics label for r.
func (r UploadResult) Outcome() string {
	switch {
	case !r.Success:
		return "failed"
	case r.DryRun:
		return "dry_run"
	case r.Simulated:
		return "simulated"
	}
	return "success"
}
