package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

func TestCollectorCounters(t *testing.T) {
	c := newTestCollector()

	c.IncAnalysis("soil", true)
	c.IncAnalysis("soil", false)
	c.IncAnalysis("soil", false)
	c.IncRemoteCall("raster", "reduce_region", "timeout")
	c.IncReports("partial")
	c.SetReferenceFeatures(1234)
	c.IncStorageOperations("list", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.analysisCounter.WithLabelValues("soil", "available")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.analysisCounter.WithLabelValues("soil", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remoteCalls.WithLabelValues("raster", "reduce_region", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reports.WithLabelValues("partial")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(c.referenceFeatures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storageOperations.WithLabelValues("list", "error")))
}

func TestCollectorHistograms(t *testing.T) {
	c := newTestCollector()

	c.ObserveAnalysisDuration("water", 250*time.Millisecond)
	c.ObserveRemoteCallDuration("poi", "query_near", time.Second)
	c.ObserveStorageDuration("download", time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(c.analysisDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(c.remoteDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(c.storageDuration))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	c := newTestCollector()

	r := mux.NewRouter()
	r.Use(c.Middleware)
	r.HandleFunc("/api/v1/soil/{code}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, code := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/soil/"+code, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/soil/{code}", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestsTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := newTestCollector()
	c.IncReports("complete")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_reports_total{outcome="complete"} 1`))
}

func TestStatusToString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{42, "unknown"},
	}
	for _, tt := range tests {
		if got := statusToString(tt.code); got != tt.want {
			t.Errorf("statusToString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
