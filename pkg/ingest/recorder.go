package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// EventAppender persists an attempt and assigns its attempt number.
// The returned event carries the assigned AttemptNumber. Implementations must
// make the count-then-insert atomic per (session, puzzle) pair.
type EventAppender interface {
	AppendEvent(ctx context.Context, event analytics.AttemptEvent) (analytics.AttemptEvent, error)
}

// FeedbackSaver persists a survey response and returns it with its id
type FeedbackSaver interface {
	SaveFeedback(ctx context.Context, feedback Feedback) (Feedback, error)
}

// CacheInvalidator drops derived data that a new event makes stale
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder validates requests and writes them through to storage
type Recorder struct {
	events      EventAppender
	feedback    FeedbackSaver
	invalidator CacheInvalidator
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithInvalidator invalidates cached reports after each recorded attempt
func WithInvalidator(invalidator CacheInvalidator) RecorderOption {
	return func(r *Recorder) { r.invalidator = invalidator }
}

// WithLogger sets the recorder logger
func WithLogger(logger *observability.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(metrics *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = metrics }
}

// NewRecorder creates a recorder writing attempts to events and surveys to feedback
func NewRecorder(events EventAppender, feedback FeedbackSaver, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		events:   events,
		feedback: feedback,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BuildEvent validates req and converts it into an event without an attempt number
func BuildEvent(req LogRequest) (analytics.AttemptEvent, error) {
	if missing := req.missing(); len(missing) > 0 {
		return analytics.AttemptEvent{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	start, err := ParseTimestamp(req.StartTime)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseTimestamp(req.EndTime)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("end_time: %w", err)
	}
	if end.Before(start) {
		return analytics.AttemptEvent{}, ErrNegativeDuration
	}

	deviceType := strings.TrimSpace(req.DeviceType)
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}

	return analytics.AttemptEvent{
		SessionID:       req.SessionID,
		PuzzleID:        req.PuzzleID,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: int(end.Sub(start) / time.Second),
		DeviceType:      deviceType,
	}, nil
}

// Record validates and stores one attempt, returning it with its attempt number
func (r *Recorder) Record(ctx context.Context, req LogRequest) (analytics.AttemptEvent, error) {
	event, err := BuildEvent(req)
	if err != nil {
		r.metrics.RecordRejection("attempt", rejectionReason(err))
		return analytics.AttemptEvent{}, err
	}

	stored, err := r.events.AppendEvent(ctx, event)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to append attempt: %w", err)
	}
	r.metrics.RecordAttempt(stored.PuzzleID)

	logger := observability.UpdateLoggerWithTraceContext(ctx, r.logger).WithFields(map[string]interface{}{
		"session_id":     stored.SessionID,
		"puzzle_id":      stored.PuzzleID,
		"attempt_number": stored.AttemptNumber,
	})
	logger.Debug("Attempt recorded")

	if r.invalidator != nil {
		// The event is stored at this point, so a failed invalidation is only logged.
		if err := r.invalidator.Invalidate(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate report cache")
		}
	}

	return stored, nil
}

// RecordFeedback validates and stores one survey response
func (r *Recorder) RecordFeedback(ctx context.Context, req FeedbackRequest) (Feedback, error) {
	if missing := req.missing(); len(missing) > 0 {
		r.metrics.RecordRejection("feedback", rejectionReason(ErrMissingFields))
		return Feedback{}, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = DefaultFeedbackSessionID
	}

	saved, err := r.feedback.SaveFeedback(ctx, Feedback{
		Experience: req.Experience,
		Learned:    int(*req.Learned),
		Favorite:   req.Favorite,
		MoreGames:  req.MoreGames,
		SessionID:  sessionID,
	})
	if err != nil {
		return Feedback{}, fmt.Errorf("failed to save feedback: %w", err)
	}
	r.metrics.RecordFeedback()
	return saved, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrNegativeDuration):
		return "negative_duration"
	case errors.Is(err, ErrInvalidScore):
		return "invalid_score"
	default:
		return "other"
	}
}
