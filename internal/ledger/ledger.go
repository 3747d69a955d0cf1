// Package ledger keeps an audit trail of audience uploads.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry records one upload of one segment to one platform.
type Entry struct {
	PK            string    `dynamodbav:"PK" json:"-"`
	SK            string    `dynamodbav:"SK" json:"-"`
	SegmentKey    string    `dynamodbav:"SegmentKey" json:"segment_key"`
	Platform      string    `dynamodbav:"Platform" json:"platform"`
	AudienceID    string    `dynamodbav:"AudienceID,omitempty" json:"audience_id,omitempty"`
	AudienceName  string    `dynamodbav:"AudienceName,omitempty" json:"audience_name,omitempty"`
	Success       bool      `dynamodbav:"Success" json:"success"`
	MatchedCount  int       `dynamodbav:"MatchedCount" json:"matched_count"`
	UploadedCount int       `dynamodbav:"UploadedCount" json:"uploaded_count"`
	FailedCount   int       `dynamodbav:"FailedCount" json:"failed_count"`
	DryRun        bool      `dynamodbav:"DryRun" json:"dry_run"`
	Simulated     bool      `dynamodbav:"Simulated" json:"simulated"`
	ErrorMessage  string    `dynamodbav:"ErrorMessage,omitempty" json:"error_message,omitempty"`
	RecordedAt    time.Time `dynamodbav:"RecordedAt" json:"recorded_at"`
	ExpiresAt     int64     `dynamodbav:"ExpiresAt,omitempty" json:"-"`
}

// Recorder stores and lists upload entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	// List returns a segment's entries, newest first, at most limit of them
	// (0 means all).
	List(ctx context.Context, segmentKey string, limit int) ([]Entry, error)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) List(context.Context, string, int) ([]Entry, error) { return nil, nil }

// Memory keeps entries in process; used when no table is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Entry)}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.SegmentKey] = append(m.entries[e.SegmentKey], e)
	return nil
}

func (m *Memory) List(_ context.Context, segmentKey string, limit int) ([]Entry, error) {
	m.mu.RLock()
	out := append([]Entry(nil), m.entries[segmentKey]...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
