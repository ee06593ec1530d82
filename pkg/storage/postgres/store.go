package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

//go:embed migrations/*.up.sql
var migrationFS embed.FS

const (
	lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	countQuery = `SELECT COUNT(*) FROM puzzle_logs WHERE session_id = $1 AND puzzle_id = $2`

	insertQuery = `
		INSERT INTO puzzle_logs
			(session_id, puzzle_id, start_time, end_time, duration_seconds, attempt_number, device_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	selectEvents = `
		SELECT session_id, puzzle_id, start_time, end_time, duration_seconds, attempt_number,
			COALESCE(device_type, 'unknown')
		FROM puzzle_logs`

	insertFeedback = `
		INSERT INTO feedback (experience, learned, favorite, more_games, session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
)

// Store persists attempts and feedback in PostgreSQL
type Store struct {
	conns  *ConnectionManager
	logger *observability.Logger
	tracer trace.Tracer
}

// NewStore creates a store over the given connections
func NewStore(conns *ConnectionManager, logger *observability.Logger) *Store {
	return &Store{
		conns:  conns,
		logger: logger,
		tracer: observability.Tracer(),
	}
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conns.Primary().ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		s.logger.WithField("migration", name).Debug("Applied migration")
	}
	return nil
}

// AppendEvent implements ingest.EventAppender.
//
// The count and the insert run in one transaction holding an advisory lock
// keyed on the (session, puzzle) pair, so concurrent writers for the same pair
// queue up and attempt numbers stay gap-free and unique.
func (s *Store) AppendEvent(ctx context.Context, event analytics.AttemptEvent) (stored analytics.AttemptEvent, err error) {
	ctx, span := s.tracer.Start(ctx, "postgres.AppendEvent", trace.WithAttributes(
		attribute.String("puzzle.id", event.PuzzleID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "append failed")
		}
		span.End()
	}()

	tx, err := s.conns.Primary().BeginTx(ctx, nil)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, lockQuery, lockKey(event)); err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to lock attempt counter: %w", err)
	}

	var prior int
	if err := tx.QueryRowContext(ctx, countQuery, event.SessionID, event.PuzzleID).Scan(&prior); err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to count prior attempts: %w", err)
	}
	event.AttemptNumber = prior + 1

	var id int64
	err = tx.QueryRowContext(ctx, insertQuery,
		event.SessionID,
		event.PuzzleID,
		event.StartTime.UTC(),
		event.EndTime.UTC(),
		event.DurationSeconds,
		event.AttemptNumber,
		event.DeviceType,
	).Scan(&id)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to commit attempt: %w", err)
	}

	span.SetAttributes(attribute.Int("attempt.number", event.AttemptNumber), attribute.Int64("row.id", id))
	return event, nil
}

func lockKey(event analytics.AttemptEvent) string {
	return event.SessionID + ":" + event.PuzzleID
}

// snapshotQuery builds the filtered select. Rows come back in insertion order.
func snapshotQuery(filter analytics.EventFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		clauses = append(clauses, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		clauses = append(clauses, fmt.Sprintf("start_time <= $%d", len(args)))
	}
	if filter.DeviceType != "" {
		args = append(args, filter.DeviceType)
		clauses = append(clauses, fmt.Sprintf("COALESCE(device_type, 'unknown') = $%d", len(args)))
	}

	query := selectEvents
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	return query + "\n\t\tORDER BY id", args
}

// FetchEvents implements analytics.EventSource. Reads go to a replica when one is configured.
func (s *Store) FetchEvents(ctx context.Context, filter analytics.EventFilter) (events []analytics.AttemptEvent, err error) {
	ctx, span := s.tracer.Start(ctx, "postgres.FetchEvents")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
		}
		span.SetAttributes(attribute.Int("events", len(events)))
		span.End()
	}()

	query, args := snapshotQuery(filter)
	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]analytics.AttemptEvent, error) {
	events := make([]analytics.AttemptEvent, 0)
	for rows.Next() {
		var e analytics.AttemptEvent
		if err := rows.Scan(
			&e.SessionID,
			&e.PuzzleID,
			&e.StartTime,
			&e.EndTime,
			&e.DurationSeconds,
			&e.AttemptNumber,
			&e.DeviceType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.StartTime = e.StartTime.UTC()
		e.EndTime = e.EndTime.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// SaveFeedback implements ingest.FeedbackSaver
func (s *Store) SaveFeedback(ctx context.Context, feedback ingest.Feedback) (ingest.Feedback, error) {
	err := s.conns.Primary().QueryRowContext(ctx, insertFeedback,
		feedback.Experience,
		feedback.Learned,
		feedback.Favorite,
		feedback.MoreGames,
		feedback.SessionID,
	).Scan(&feedback.ID)
	if err != nil {
		return ingest.Feedback{}, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return feedback, nil
}

// PingContext reports primary and replica health
func (s *Store) PingContext(ctx context.Context) error {
	return s.conns.PingContext(ctx)
}

// Close closes every connection
func (s *Store) Close() error {
	return s.conns.Close()
}
