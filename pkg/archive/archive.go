package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

const (
	contentTypeJSON = "application/json"
	checksumKey     = "checksum-sha256"
)

// Backend stores one archived object
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Name() string
}

// Archiver serializes reports and hands them to a Backend
type Archiver struct {
	backend Backend
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Option configures an Archiver
type Option func(*Archiver)

// WithLogger sets the archiver logger
func WithLogger(logger *observability.Logger) Option {
	return func(a *Archiver) { a.logger = logger }
}

// WithMetrics enables upload counters
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Archiver) { a.metrics = metrics }
}

// New creates an archiver over backend
func New(backend Backend, opts ...Option) *Archiver {
	a := &Archiver{
		backend: backend,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReportKey returns the object key for a report generated at t
func ReportKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("reports/%04d/%02d/%02d/report-%d.json", t.Year(), int(t.Month()), t.Day(), t.Unix())
}

// Checksum returns the hex SHA-256 of data
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Archive writes report and returns the key it was stored under
func (a *Archiver) Archive(ctx context.Context, report *analytics.Report) (key string, err error) {
	if report == nil {
		return "", fmt.Errorf("archive: nil report")
	}

	key = ReportKey(report.GeneratedAt)
	ctx, span := observability.Tracer().Start(ctx, "archive.Archive",
		trace.WithAttributes(
			attribute.String("archive.backend", a.backend.Name()),
			attribute.String("archive.key", key),
		),
	)
	defer span.End()
	defer func() { a.metrics.RecordArchiveUpload(err) }()

	data, err := json.Marshal(report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	span.SetAttributes(attribute.Int("content.size", len(data)))

	metadata := map[string]string{
		checksumKey:   Checksum(data),
		"event-count": fmt.Sprint(report.EventCount),
	}
	if err := a.backend.Put(ctx, key, data, contentTypeJSON, metadata); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		a.logger.WithError(err).WithField("key", key).Error("Failed to archive report")
		return "", fmt.Errorf("failed to archive report to %s: %w", a.backend.Name(), err)
	}

	span.SetStatus(codes.Ok, "report archived")
	a.logger.WithFields(map[string]interface{}{
		"key":     key,
		"backend": a.backend.Name(),
		"events":  report.EventCount,
	}).Info("Report archived")
	return key, nil
}
