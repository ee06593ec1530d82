package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/httputil"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// DefaultMaxBodyBytes bounds ingestion request bodies
const DefaultMaxBodyBytes = 1 << 20

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics instruments routes and serves gatherer on /metrics
func WithMetrics(metrics *observability.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.gatherer = gatherer
	}
}

// WithHealthChecker serves /health, /health/live and /health/ready
func WithHealthChecker(checker *observability.HealthChecker) Option {
	return func(s *Server) { s.health = checker }
}

// WithCORSOrigins sets the allowed CORS origins ("*" for any)
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes bounds request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithTracing wraps the handler in otelhttp
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// Server is the HTTP front end for ingestion and analytics
type Server struct {
	router    *mux.Router
	analytics *AnalyticsHandlers
	ingest    *IngestHandlers

	logger       *observability.Logger
	metrics      *observability.Metrics
	gatherer     prometheus.Gatherer
	health       *observability.HealthChecker
	corsOrigins  []string
	maxBodyBytes int64
	tracing      bool

	handler http.Handler
}

// NewServer wires the analytics service and recorder to a router
func NewServer(service *analytics.Service, recorder *ingest.Recorder, opts ...Option) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       observability.NopLogger(),
		corsOrigins:  []string{"*"},
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.analytics = NewAnalyticsHandlers(service, s.logger)
	s.ingest = NewIngestHandlers(recorder, s.logger)
	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "Not Found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	s.ingest.RegisterRoutes(apiRouter)
	s.analytics.RegisterRoutes(apiRouter)

	if s.health != nil {
		observability.RegisterHealthRoutes(s.router, s.health)
	}
	if s.gatherer != nil {
		observability.RegisterMetricsEndpoint(s.router, s.gatherer)
	}
}

func (s *Server) buildHandler() http.Handler {
	h := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.CORSMiddleware(s.corsOrigins),
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)(s.router)

	if s.tracing {
		h = otelhttp.NewHandler(h, "puzzlelog",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return h
}

// Router exposes the underlying router for additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
