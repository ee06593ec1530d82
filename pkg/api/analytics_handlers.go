package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/httputil"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// AnalyticsHandlers provides the read-side endpoints
type AnalyticsHandlers struct {
	service *analytics.Service
	logger  *observability.Logger
}

// NewAnalyticsHandlers creates a new analytics handlers instance
func NewAnalyticsHandlers(service *analytics.Service, logger *observability.Logger) *AnalyticsHandlers {
	return &AnalyticsHandlers{service: service, logger: logger}
}

// RegisterRoutes registers analytics routes on a router mounted at /api
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analytics", h.getOverall).Methods(http.MethodGet)
	r.HandleFunc("/analytics/time-by-attempt", h.getTimeByAttempt).Methods(http.MethodGet)
	r.HandleFunc("/analytics/funnel", h.getFunnel).Methods(http.MethodGet)
	r.HandleFunc("/analytics/first-try", h.getFirstTry).Methods(http.MethodGet)
	r.HandleFunc("/analytics/improvement", h.getImprovement).Methods(http.MethodGet)
	r.HandleFunc("/analytics/report", h.getReport).Methods(http.MethodGet)
}

// getOverall handles GET /api/analytics
func (h *AnalyticsHandlers) getOverall(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.service.Overall)
}

// getTimeByAttempt handles GET /api/analytics/time-by-attempt.
// The response is an object keyed by puzzle id.
func (h *AnalyticsHandlers) getTimeByAttempt(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, func(ctx context.Context, f analytics.EventFilter) (map[string][]analytics.AttemptTiming, error) {
		entries, err := h.service.TimeByAttempt(ctx, f)
		if err != nil {
			return nil, err
		}
		return analytics.TimeByAttemptByPuzzle(entries), nil
	})
}

// getFunnel handles GET /api/analytics/funnel
func (h *AnalyticsHandlers) getFunnel(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.service.Funnel)
}

// getFirstTry handles GET /api/analytics/first-try
func (h *AnalyticsHandlers) getFirstTry(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.service.FirstTry)
}

// getImprovement handles GET /api/analytics/improvement
func (h *AnalyticsHandlers) getImprovement(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.service.Improvement)
}

// getReport handles GET /api/analytics/report
func (h *AnalyticsHandlers) getReport(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, h.service.Report)
}

// serve parses the filter, runs query and writes its result or error
func serve[T any](h *AnalyticsHandlers, w http.ResponseWriter, r *http.Request, query func(context.Context, analytics.EventFilter) (T, error)) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := query(r.Context(), filter)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

// parseFilter reads from, to and device_type
func parseFilter(r *http.Request) (analytics.EventFilter, error) {
	from, err := httputil.ParseQueryTime(r, "from")
	if err != nil {
		return analytics.EventFilter{}, err
	}
	to, err := httputil.ParseQueryTime(r, "to")
	if err != nil {
		return analytics.EventFilter{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return analytics.EventFilter{}, errors.New("to must not be before from")
	}

	return analytics.EventFilter{
		From:       from,
		To:         to,
		DeviceType: httputil.ParseQueryString(r, "device_type", ""),
	}, nil
}

func (h *AnalyticsHandlers) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.FromContext(r.Context()).WithError(err)
	switch {
	case errors.Is(err, analytics.ErrSnapshotUnavailable):
		logger.Warn("Analytics snapshot unavailable")
		httputil.WriteServiceUnavailable(w, analytics.ErrSnapshotUnavailable.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		logger.Debug("Analytics request cancelled")
	default:
		logger.Error("Analytics query failed")
		httputil.WriteInternalError(w)
	}
}
