package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
)

// ErrClosed is returned by a MemoryStore after Close
var ErrClosed = errors.New("store is closed")

// MemoryStore keeps everything in process memory. It is meant for development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []analytics.AttemptEvent
	counts   map[analytics.SessionPuzzle]int
	feedback []ingest.Feedback
	closed   bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counts: make(map[analytics.SessionPuzzle]int),
	}
}

// AppendEvent implements ingest.EventAppender
func (s *MemoryStore) AppendEvent(ctx context.Context, event analytics.AttemptEvent) (analytics.AttemptEvent, error) {
	if err := ctx.Err(); err != nil {
		return analytics.AttemptEvent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return analytics.AttemptEvent{}, ErrClosed
	}

	key := analytics.BySessionPuzzle(event)
	s.counts[key]++
	event.AttemptNumber = s.counts[key]
	s.events = append(s.events, event)
	return event, nil
}

// FetchEvents implements analytics.EventSource. The result is a private copy.
func (s *MemoryStore) FetchEvents(ctx context.Context, filter analytics.EventFilter) ([]analytics.AttemptEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if filter.IsZero() {
		return append(make([]analytics.AttemptEvent, 0, len(s.events)), s.events...), nil
	}
	return filter.Apply(s.events), nil
}

// SaveFeedback implements ingest.FeedbackSaver
func (s *MemoryStore) SaveFeedback(ctx context.Context, feedback ingest.Feedback) (ingest.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ingest.Feedback{}, ErrClosed
	}

	feedback.ID = int64(len(s.feedback) + 1)
	s.feedback = append(s.feedback, feedback)
	return feedback, nil
}

// Feedback returns a copy of every stored survey response
func (s *MemoryStore) Feedback() []ingest.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out
}

// PingContext implements Store
func (s *MemoryStore) PingContext(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
