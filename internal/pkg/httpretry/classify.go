package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxBodyInError bounds how much of a response body lands in an error message.
const maxBodyInError = 512

// Classify maps an HTTP status to the retry taxonomy. 2xx returns nil.
//
//	429            → *RateLimitError (Retry-After honored)
//	408, 5xx       → *RetryableError
//	other non-2xx  → *PermanentError
func Classify(statusCode int, header http.Header, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := truncate(strings.TrimSpace(string(body)), maxBodyInError)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			StatusCode: statusCode,
			RetryAfter: ParseRetryAfter(header.Get("Retry-After"), time.Now()),
			Message:    msg,
		}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return &RetryableError{StatusCode: statusCode, Err: errors.New(msg)}
	default:
		return &PermanentError{StatusCode: statusCode, Err: errors.New(msg)}
	}
}

// ClassifyTransportError wraps a failed round trip. Context cancellation is
// returned unchanged so the policy does not retry it; everything else is
// treated as a transient network failure.
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RetryableError{Err: fmt.Errorf("request failed: %w", err)}
}

// ParseRetryAfter understands both delta-seconds and HTTP-date forms.
// Unparseable or past values return zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
