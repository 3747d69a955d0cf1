package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/cdp-activation/internal/pkg/httputil"
	"github.com/ignite/cdp-activation/internal/records"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BucketHeader is the part of *s3.Client the export bucket check needs.
type BucketHeader interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type componentProbe struct {
	name     string
	critical bool
	run      func(ctx context.Context) ComponentCheck
}

// HealthChecker probes the record snapshot and whichever backing services
// were configured. Only the snapshot is critical.
type HealthChecker struct {
	probes    []componentProbe
	startTime time.Time
}

// NewHealthChecker registers a probe for holder and for every non-nil
// dependency.
func NewHealthChecker(holder *records.Holder, db *sql.DB, redisClient *redis.Client, bucket BucketHeader, bucketName string) *HealthChecker {
	hc := &HealthChecker{startTime: time.Now()}

	hc.probes = append(hc.probes, componentProbe{
		name:     "data",
		critical: true,
		run:      func(context.Context) ComponentCheck { return checkSnapshot(holder) },
	})
	if db != nil {
		hc.probes = append(hc.probes, componentProbe{
			name: "database",
			run: func(ctx context.Context) ComponentCheck {
				return pingCheck(ctx, 3*time.Second, time.Second, db.PingContext)
			},
		})
	}
	if redisClient != nil {
		hc.probes = append(hc.probes, componentProbe{
			name: "redis",
			run: func(ctx context.Context) ComponentCheck {
				return pingCheck(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				})
			},
		})
	}
	if bucket != nil && bucketName != "" {
		hc.probes = append(hc.probes, componentProbe{
			name: "export_bucket",
			run: func(ctx context.Context) ComponentCheck {
				check := pingCheck(ctx, 3*time.Second, 2*time.Second, func(ctx context.Context) error {
					_, err := bucket.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucketName})
					return err
				})
				if check.Status == "up" {
					check.Message = fmt.Sprintf("bucket %q accessible", bucketName)
				}
				return check
			},
		})
	}
	return hc
}

const healthVersion = "1.0.0"

// HandleHealth returns the status of all components. Always 200; the body
// carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.evaluate(r.Context())

	httputil.OK(w, HealthStatus{
		Status:  overall,
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 until a record snapshot is published.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.evaluate(r.Context())

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	httputil.JSON(w, httpStatus, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// evaluate runs all probes concurrently and derives the aggregate status:
// "unhealthy" if a critical probe is down, "degraded" if any other probe is
// not up, "healthy" otherwise.
func (hc *HealthChecker) evaluate(ctx context.Context) (map[string]ComponentCheck, string) {
	results := make([]ComponentCheck, len(hc.probes))
	var wg sync.WaitGroup
	for i, p := range hc.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.run(ctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]ComponentCheck, len(hc.probes))
	overall := "healthy"
	for i, p := range hc.probes {
		c := results[i]
		checks[p.name] = c
		switch {
		case p.critical && c.Status == "down":
			overall = "unhealthy"
		case c.Status != "up" && overall == "healthy":
			overall = "degraded"
		}
	}
	return checks, overall
}

// checkSnapshot reports whether records are loaded and how old they are.
func checkSnapshot(holder *records.Holder) ComponentCheck {
	if holder == nil {
		return ComponentCheck{Status: "down", Message: "no record holder"}
	}
	store, err := holder.Load()
	if err != nil {
		return ComponentCheck{Status: "down", Message: err.Error()}
	}
	c := store.Counts()
	return ComponentCheck{
		Status: "up",
		Message: fmt.Sprintf("%d customers, %d transactions, %d events loaded %s ago",
			c.Customers, c.Transactions, c.Events, formatUptime(time.Since(c.LoadedAt))),
	}
}

// pingCheck times ping under timeout. Responses slower than slow are
// degraded.
func pingCheck(ctx context.Context, timeout, slow time.Duration, ping func(context.Context) error) ComponentCheck {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(pingCtx)
	latency := time.Since(start)

	switch {
	case err != nil:
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	case latency > slow:
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
