package analytics

import (
	"errors"
	"fmt"
	"time"
)

// AttemptEvent is one logged play of a puzzle by a session.
// Events are created once at ingestion and never modified afterwards.
type AttemptEvent struct {
	SessionID       string    `json:"session_id"`
	PuzzleID        string    `json:"puzzle_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int       `json:"duration_seconds"`
	AttemptNumber   int       `json:"attempt_number"`
	DeviceType      string    `json:"device_type,omitempty"`
}

// EventFilter narrows the snapshot handed to the aggregators.
// Zero values match everything. Time bounds apply to StartTime and are inclusive.
type EventFilter struct {
	From       time.Time
	To         time.Time
	DeviceType string
}

// Matches reports whether the event passes the filter
func (f EventFilter) Matches(e AttemptEvent) bool {
	if !f.From.IsZero() && e.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.StartTime.After(f.To) {
		return false
	}
	if f.DeviceType != "" && e.DeviceType != f.DeviceType {
		return false
	}
	return true
}

// IsZero reports whether the filter matches every event
func (f EventFilter) IsZero() bool {
	return f.From.IsZero() && f.To.IsZero() && f.DeviceType == ""
}

// Key returns a stable string form of the filter, used for cache keys
func (f EventFilter) Key() string {
	if f.IsZero() {
		return "all"
	}
	from, to := "-", "-"
	if !f.From.IsZero() {
		from = f.From.UTC().Format(time.RFC3339Nano)
	}
	if !f.To.IsZero() {
		to = f.To.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("from=%s;to=%s;device=%s", from, to, f.DeviceType)
}

// Apply returns the events that match the filter, preserving order.
// The input slice is returned as is when the filter is empty.
func (f EventFilter) Apply(events []AttemptEvent) []AttemptEvent {
	if f.IsZero() {
		return events
	}
	out := make([]AttemptEvent, 0, len(events))
	for _, e := range events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

var (
	// ErrEmptyPuzzleID is returned when a puzzle order contains a blank identifier
	ErrEmptyPuzzleID = errors.New("puzzle id must not be empty")
	// ErrDuplicatePuzzleID is returned when a puzzle order lists the same puzzle twice
	ErrDuplicatePuzzleID = errors.New("duplicate puzzle id")
	// ErrEmptyPuzzleOrder is returned when a puzzle order has no entries
	ErrEmptyPuzzleOrder = errors.New("puzzle order must contain at least one puzzle")
)

// PuzzleOrder is the fixed sequence of puzzles that defines funnel adjacency and
// report ordering. It is immutable once built; the zero value is an empty order.
type PuzzleOrder struct {
	ids   []string
	index map[string]int
}

// NewPuzzleOrder builds a PuzzleOrder from the given identifiers
func NewPuzzleOrder(ids ...string) (PuzzleOrder, error) {
	if len(ids) == 0 {
		return PuzzleOrder{}, ErrEmptyPuzzleOrder
	}

	order := PuzzleOrder{
		ids:   make([]string, len(ids)),
		index: make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if id == "" {
			return PuzzleOrder{}, fmt.Errorf("position %d: %w", i, ErrEmptyPuzzleID)
		}
		if _, dup := order.index[id]; dup {
			return PuzzleOrder{}, fmt.Errorf("%q: %w", id, ErrDuplicatePuzzleID)
		}
		order.ids[i] = id
		order.index[id] = i
	}
	return order, nil
}

// MustPuzzleOrder is like NewPuzzleOrder but panics on error
func MustPuzzleOrder(ids ...string) PuzzleOrder {
	order, err := NewPuzzleOrder(ids...)
	if err != nil {
		panic(err)
	}
	return order
}

// IDs returns a copy of the ordered puzzle identifiers
func (o PuzzleOrder) IDs() []string {
	out := make([]string, len(o.ids))
	copy(out, o.ids)
	return out
}

// Len returns the number of puzzles in the order
func (o PuzzleOrder) Len() int {
	return len(o.ids)
}

// Contains reports whether the puzzle is part of the order
func (o PuzzleOrder) Contains(puzzleID string) bool {
	_, ok := o.index[puzzleID]
	return ok
}

// Next returns the puzzle that follows puzzleID. ok is false for the last
// puzzle and for puzzles outside the order.
func (o PuzzleOrder) Next(puzzleID string) (next string, ok bool) {
	i, found := o.index[puzzleID]
	if !found || i+1 >= len(o.ids) {
		return "", false
	}
	return o.ids[i+1], true
}

// String implements fmt.Stringer
func (o PuzzleOrder) String() string {
	return fmt.Sprintf("%v", o.ids)
}
