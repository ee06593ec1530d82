package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Ingestion metrics
	AttemptsRecordedTotal *prometheus.CounterVec
	FeedbackRecordedTotal prometheus.Counter
	IngestRejectedTotal   *prometheus.CounterVec

	// Snapshot and aggregation metrics
	SnapshotFetchDuration    prometheus.Histogram
	SnapshotFetchErrorsTotal prometheus.Counter
	SnapshotEvents           prometheus.Gauge
	AggregationDuration      *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Archive metrics
	ArchiveUploadsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puzzlelog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puzzlelog_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		AttemptsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_attempts_recorded_total",
				Help: "Total number of puzzle attempts recorded",
			},
			[]string{"puzzle_id"},
		),
		FeedbackRecordedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "puzzlelog_feedback_recorded_total",
				Help: "Total number of feedback submissions recorded",
			},
		),
		IngestRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_ingest_rejected_total",
				Help: "Total number of rejected ingestion requests",
			},
			[]string{"kind", "reason"},
		),

		SnapshotFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "puzzlelog_snapshot_fetch_duration_seconds",
				Help:    "Time spent fetching an event snapshot",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		SnapshotFetchErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "puzzlelog_snapshot_fetch_errors_total",
				Help: "Total number of failed snapshot fetches",
			},
		),
		SnapshotEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "puzzlelog_snapshot_events",
				Help: "Number of events in the most recent snapshot",
			},
		),
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puzzlelog_aggregation_duration_seconds",
				Help:    "Aggregator run time in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"aggregator"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_report_cache_hits_total",
				Help: "Total number of report cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_report_cache_misses_total",
				Help: "Total number of report cache misses",
			},
			[]string{"layer"},
		),

		ArchiveUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzlelog_archive_uploads_total",
				Help: "Total number of report archive uploads",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AttemptsRecordedTotal,
		m.FeedbackRecordedTotal,
		m.IngestRejectedTotal,
		m.SnapshotFetchDuration,
		m.SnapshotFetchErrorsTotal,
		m.SnapshotEvents,
		m.AggregationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ArchiveUploadsTotal,
	)

	return m
}

// RecordAttempt counts a recorded attempt
func (m *Metrics) RecordAttempt(puzzleID string) {
	if m == nil {
		return
	}
	m.AttemptsRecordedTotal.WithLabelValues(puzzleID).Inc()
}

// RecordFeedback counts a recorded feedback submission
func (m *Metrics) RecordFeedback() {
	if m == nil {
		return
	}
	m.FeedbackRecordedTotal.Inc()
}

// RecordRejection counts a rejected ingestion request
func (m *Metrics) RecordRejection(kind, reason string) {
	if m == nil {
		return
	}
	m.IngestRejectedTotal.WithLabelValues(kind, reason).Inc()
}

// RecordSnapshot records the outcome of a snapshot fetch
func (m *Metrics) RecordSnapshot(events int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SnapshotFetchDuration.Observe(duration.Seconds())
	if err != nil {
		m.SnapshotFetchErrorsTotal.Inc()
		return
	}
	m.SnapshotEvents.Set(float64(events))
}

// RecordAggregation records how long one aggregator took
func (m *Metrics) RecordAggregation(aggregator string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AggregationDuration.WithLabelValues(aggregator).Observe(duration.Seconds())
}

// RecordCacheHit counts a report cache hit on the given layer
func (m *Metrics) RecordCacheHit(layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
}

// RecordCacheMiss counts a report cache miss on the given layer
func (m *Metrics) RecordCacheMiss(layer string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

// RecordArchiveUpload counts an archive upload attempt
func (m *Metrics) RecordArchiveUpload(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ArchiveUploadsTotal.WithLabelValues(status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the mux route template so path labels stay bounded
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Register it with mux.Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(r *mux.Router, gatherer prometheus.Gatherer) {
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
