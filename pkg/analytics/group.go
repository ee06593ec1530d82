package analytics

import (
	"slices"
	"sort"
)

// SessionPuzzle identifies every attempt one session made at one puzzle
type SessionPuzzle struct {
	SessionID string
	PuzzleID  string
}

// BySessionPuzzle is a GroupBy key function for (session, puzzle) pairs
func BySessionPuzzle(e AttemptEvent) SessionPuzzle {
	return SessionPuzzle{SessionID: e.SessionID, PuzzleID: e.PuzzleID}
}

// ByPuzzle is a GroupBy key function for puzzle identifiers
func ByPuzzle(e AttemptEvent) string {
	return e.PuzzleID
}

// BySession is a GroupBy key function for session identifiers
func BySession(e AttemptEvent) string {
	return e.SessionID
}

// GroupBy buckets events by key. Each bucket keeps the events in input order.
func GroupBy[K comparable](events []AttemptEvent, key func(AttemptEvent) K) map[K][]AttemptEvent {
	groups := make(map[K][]AttemptEvent)
	for _, e := range events {
		k := key(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}

// SortedByAttempt returns a copy of events ordered by ascending attempt number.
// Ties keep their input order.
func SortedByAttempt(events []AttemptEvent) []AttemptEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b AttemptEvent) int {
		return a.AttemptNumber - b.AttemptNumber
	})
	return sorted
}

// sortedKeys returns the keys of a string-keyed map in ascending order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// set is a string set
type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}
