package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/storage"
)

const fileTimeLayout = "20060102_150405"

// FileName is <platform>_audience_<segment>_<YYYYMMDD_HHMMSS>.csv.
func FileName(p domain.Platform, segmentKey string, at time.Time) string {
	return fmt.Sprintf("%s_audience_%s_%s.csv", p, segmentKey, at.Format(fileTimeLayout))
}

// ReportFileName is export_report_<YYYYMMDD_HHMMSS>.txt.
func ReportFileName(at time.Time) string {
	return fmt.Sprintf("export_report_%s.txt", at.Format(fileTimeLayout))
}

// Sink persists export files to an object store.
type Sink struct {
	store storage.ObjectStore
	now   func() time.Time
}

// NewSink writes through store.
func NewSink(store storage.ObjectStore) *Sink {
	return &Sink{store: store, now: time.Now}
}

// LocalSink writes files under dir.
func LocalSink(dir string) (*Sink, error) {
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	return NewSink(store), nil
}

// S3Sink writes files under bucket/prefix.
func S3Sink(client storage.S3API, bucket, prefix string) *Sink {
	return NewSink(storage.NewS3Store(client, bucket, prefix))
}

// WriteTable stores t as CSV and returns where it landed. Empty tables are
// not written and yield an empty location.
func (s *Sink) WriteTable(ctx context.Context, t *Table, segmentKey string) (string, error) {
	if t.Len() == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return "", err
	}
	name := FileName(t.Platform, segmentKey, s.now())
	if err := s.store.Put(ctx, name, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("storing %s: %w", name, err)
	}
	return s.store.Location(name), nil
}

// WriteReport stores a rendered report.
func (s *Sink) WriteReport(ctx context.Context, report string) (string, error) {
	name := ReportFileName(s.now())
	if err := s.store.Put(ctx, name, []byte(report), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("storing %s: %w", name, err)
	}
	return s.store.Location(name), nil
}
