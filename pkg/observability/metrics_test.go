package observability

import (
	"errors"
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

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	assert.Panics(t, func() { NewMetrics(registry) }, "second registration must collide")
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAttempt("puzzle1")
		m.RecordFeedback()
		m.RecordRejection("attempt", "missing_fields")
		m.RecordSnapshot(3, time.Millisecond, nil)
		m.RecordAggregation("funnel", time.Millisecond)
		m.RecordCacheHit("l1")
		m.RecordCacheMiss("l2")
		m.RecordArchiveUpload(nil)
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAttempt("puzzle1")
	m.RecordAttempt("puzzle1")
	m.RecordRejection("attempt", "invalid_timestamp")
	m.RecordSnapshot(7, 10*time.Millisecond, nil)
	m.RecordSnapshot(0, time.Millisecond, errors.New("db down"))
	m.RecordCacheHit("l1")
	m.RecordCacheMiss("l2")
	m.RecordArchiveUpload(errors.New("denied"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AttemptsRecordedTotal.WithLabelValues("puzzle1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestRejectedTotal.WithLabelValues("attempt", "invalid_timestamp")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.SnapshotEvents), "failed fetch must not reset the gauge")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFetchErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("l2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveUploadsTotal.WithLabelValues("error")))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/analytics/{view}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}).Methods(http.MethodGet)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/analytics/funnel", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/analytics/{view}", "418")))
}

func TestHTTPMetricsMiddleware_NilMetricsPassesThrough(t *testing.T) {
	called := false
	h := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordFeedback()

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "puzzlelog_feedback_recorded_total 1"))
}
