package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/puzzlelog/pkg/httputil"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// LogResponse is returned after an attempt is recorded
type LogResponse struct {
	Status        string `json:"status"`
	AttemptNumber int    `json:"attempt_number"`
}

// FeedbackResponse is returned after feedback is recorded
type FeedbackResponse struct {
	Status string `json:"status"`
}

// IngestHandlers serves the write endpoints
type IngestHandlers struct {
	recorder *ingest.Recorder
	logger   *observability.Logger
}

// NewIngestHandlers creates a new ingestion handlers instance
func NewIngestHandlers(recorder *ingest.Recorder, logger *observability.Logger) *IngestHandlers {
	return &IngestHandlers{recorder: recorder, logger: logger}
}

// RegisterRoutes registers ingestion routes on a router mounted at /api
func (h *IngestHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/log", h.logAttempt).Methods(http.MethodPost)
	r.HandleFunc("/feedback", h.submitFeedback).Methods(http.MethodPost)
}

// logAttempt handles POST /api/log
func (h *IngestHandlers) logAttempt(w http.ResponseWriter, r *http.Request) {
	var req ingest.LogRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := observability.WithSessionID(r.Context(), req.SessionID)
	event, err := h.recorder.Record(ctx, req)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, LogResponse{Status: "logged", AttemptNumber: event.AttemptNumber})
}

// submitFeedback handles POST /api/feedback
func (h *IngestHandlers) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req ingest.FeedbackRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			h.writeIngestError(w, r, err)
			return
		}
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx := observability.WithSessionID(r.Context(), req.SessionID)
	if _, err := h.recorder.RecordFeedback(ctx, req); err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, FeedbackResponse{Status: "submitted"})
}

func (h *IngestHandlers) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingest.ErrMissingFields):
		httputil.WriteBadRequest(w, "Missing required fields")
	case errors.Is(err, ingest.ErrInvalidInput):
		httputil.WriteError(w, http.StatusBadRequest, err)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("Failed to record submission")
		httputil.WriteInternalError(w)
	}
}
