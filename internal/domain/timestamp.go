package domain

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// TimestampLayout is the wall-clock layout used by the record files.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the layout of calendar dates such as registration_date.
const DateLayout = "2006-01-02"

var recordLocation atomic.Pointer[time.Location]

// SetRecordLocation sets the zone naive record timestamps are read and
// written in. nil restores UTC.
func SetRecordLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	recordLocation.Store(loc)
}

// RecordLocation is the zone of naive record timestamps, UTC by default.
func RecordLocation() *time.Location {
	if loc := recordLocation.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// Timestamp is a time.Time that reads both TimestampLayout and RFC 3339.
// Naive timestamps are interpreted in RecordLocation.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

// ParseTimestamp parses TimestampLayout, RFC 3339 or a bare date.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, DateLayout} {
		if t, err := time.ParseInLocation(layout, s, RecordLocation()); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + ts.In(RecordLocation()).Format(TimestampLayout) + `"`), nil
}

// Scan lets database/sql fill a Timestamp from a time or text column.
func (ts *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
	case time.Time:
		ts.Time = v.UTC()
	case string:
		parsed, err := ParseTimestamp(v)
		if err != nil {
			return err
		}
		*ts = parsed
	case []byte:
		parsed, err := ParseTimestamp(string(v))
		if err != nil {
			return err
		}
		*ts = parsed
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
	return nil
}
