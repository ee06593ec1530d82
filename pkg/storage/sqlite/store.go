// Package sqlite implements a single-file event store for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
)

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS puzzle_logs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT    NOT NULL,
	puzzle_id        TEXT    NOT NULL,
	start_time       TEXT    NOT NULL,
	end_time         TEXT    NOT NULL,
	duration_seconds INTEGER NOT NULL,
	attempt_number   INTEGER NOT NULL,
	device_type      TEXT    DEFAULT 'unknown',
	UNIQUE (session_id, puzzle_id, attempt_number)
);
CREATE INDEX IF NOT EXISTS idx_puzzle_logs_start_time ON puzzle_logs (start_time);
CREATE TABLE IF NOT EXISTS feedback (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	experience TEXT    NOT NULL,
	learned    INTEGER NOT NULL,
	favorite   TEXT    NOT NULL,
	more_games TEXT    NOT NULL,
	session_id TEXT    DEFAULT 'unknown'
);`

// Store persists attempts and feedback in a SQLite database file
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Write transactions begin IMMEDIATE so the count-then-insert for attempt
// numbers holds the write lock throughout.
func Open(ctx context.Context, path string) (*Store, error) {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; readers share the same handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// AppendEvent implements ingest.EventAppender
func (s *Store) AppendEvent(ctx context.Context, event analytics.AttemptEvent) (analytics.AttemptEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var prior int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM puzzle_logs WHERE session_id = ? AND puzzle_id = ?`,
		event.SessionID, event.PuzzleID,
	).Scan(&prior)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to count prior attempts: %w", err)
	}
	event.AttemptNumber = prior + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO puzzle_logs
			(session_id, puzzle_id, start_time, end_time, duration_seconds, attempt_number, device_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.SessionID,
		event.PuzzleID,
		formatTime(event.StartTime),
		formatTime(event.EndTime),
		event.DurationSeconds,
		event.AttemptNumber,
		event.DeviceType,
	)
	if err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return analytics.AttemptEvent{}, fmt.Errorf("failed to commit attempt: %w", err)
	}
	return event, nil
}

// FetchEvents implements analytics.EventSource
func (s *Store) FetchEvents(ctx context.Context, filter analytics.EventFilter) ([]analytics.AttemptEvent, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if !filter.From.IsZero() {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, formatTime(filter.To))
	}
	if filter.DeviceType != "" {
		clauses = append(clauses, "COALESCE(device_type, 'unknown') = ?")
		args = append(args, filter.DeviceType)
	}

	query := `SELECT session_id, puzzle_id, start_time, end_time, duration_seconds, attempt_number,
		COALESCE(device_type, 'unknown') FROM puzzle_logs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]analytics.AttemptEvent, 0)
	for rows.Next() {
		var (
			e          analytics.AttemptEvent
			start, end string
		)
		if err := rows.Scan(&e.SessionID, &e.PuzzleID, &start, &end, &e.DurationSeconds, &e.AttemptNumber, &e.DeviceType); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.StartTime, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("corrupt start_time %q: %w", start, err)
		}
		if e.EndTime, err = time.Parse(timeLayout, end); err != nil {
			return nil, fmt.Errorf("corrupt end_time %q: %w", end, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// SaveFeedback implements ingest.FeedbackSaver
func (s *Store) SaveFeedback(ctx context.Context, feedback ingest.Feedback) (ingest.Feedback, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (experience, learned, favorite, more_games, session_id) VALUES (?, ?, ?, ?, ?)`,
		feedback.Experience, feedback.Learned, feedback.Favorite, feedback.MoreGames, feedback.SessionID,
	)
	if err != nil {
		return ingest.Feedback{}, fmt.Errorf("failed to insert feedback: %w", err)
	}
	if feedback.ID, err = result.LastInsertId(); err != nil {
		return ingest.Feedback{}, fmt.Errorf("failed to read feedback id: %w", err)
	}
	return feedback, nil
}

// PingContext checks the database handle
func (s *Store) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
