package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-options/internal/metrics"
	"github.com/feral-file/ff-options/internal/options"
)

var _ options.Recorder = (*metrics.Metrics)(nil)

func TestMetrics_Observe(t *testing.T) {
	m := metrics.New()

	m.Observe("get", "ok", 2*time.Millisecond)
	m.Observe("get", "miss", time.Millisecond)
	m.Observe("get", "ok", time.Millisecond)
	m.Observe("set", "error", 5*time.Millisecond)

	expected := `
# HELP ff_options_operations_total Total number of option operations by outcome
# TYPE ff_options_operations_total counter
ff_options_operations_total{operation="get",outcome="miss"} 1
ff_options_operations_total{operation="get",outcome="ok"} 2
ff_options_operations_total{operation="set",outcome="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "ff_options_operations_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "ff_options_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	m := metrics.New()

	m.ObserveRequest(http.MethodGet, "/api/v1/options/:key", http.StatusNotFound, time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/v1/options/:key", http.StatusOK, time.Millisecond)

	expected := `
# HELP ff_options_http_requests_total Total number of admin API requests
# TYPE ff_options_http_requests_total counter
ff_options_http_requests_total{method="GET",route="/api/v1/options/:key",status="200"} 1
ff_options_http_requests_total{method="GET",route="/api/v1/options/:key",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "ff_options_http_requests_total"))
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.Observe("delete", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ff_options_operations_total{operation="delete",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
