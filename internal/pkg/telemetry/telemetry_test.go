package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingOptions{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingOptions{Enabled: true, ServiceName: "cdp-test", Writer: &buf})
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "segment.run")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "segment.run")
	assert.Contains(t, buf.String(), "cdp-test")
}

func TestMetricsHandler(t *testing.T) {
	UploadsTotal.WithLabelValues("meta", "success").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(UploadsTotal.WithLabelValues("meta", "success")), 1.0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cdp_uploads_total")
}
