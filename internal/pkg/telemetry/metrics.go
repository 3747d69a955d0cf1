// Package telemetry holds the process-wide Prometheus metrics and the
// OpenTelemetry tracer setup.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cdp"

var (
	SegmentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_runs_total",
			Help:      "Segment evaluations over the full population.",
		},
		[]string{"segment"},
	)

	SegmentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_run_duration_seconds",
			Help:      "Wall time of one segment evaluation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"segment"},
	)

	SegmentMatches = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segment_matched_customers",
			Help:      "Customers matched by the latest run of a segment.",
		},
		[]string{"segment"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Segment uploads by platform and outcome (success, failed, dry_run, simulated).",
		},
		[]string{"platform", "outcome"},
	)

	UploadedUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_users_total",
			Help:      "Hashed users accepted by a platform.",
		},
		[]string{"platform"},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_batches_total",
			Help:      "Upload batches by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried platform operations.",
		},
		[]string{"operation"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
