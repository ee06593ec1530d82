package analytics

import (
	"errors"
	"time"
)

var (
	// ErrSnapshotUnavailable wraps any failure to fetch the event snapshot.
	// The request fails as a whole; nothing is retried.
	ErrSnapshotUnavailable = errors.New("event snapshot unavailable")
	// ErrAggregationFailed is returned when an aggregator aborts. No partial
	// report is ever returned alongside it.
	ErrAggregationFailed = errors.New("aggregation failed")
)

// Report bundles the output of every aggregator for one snapshot
type Report struct {
	GeneratedAt   time.Time            `json:"generated_at"`
	EventCount    int                  `json:"event_count"`
	PuzzleOrder   []string             `json:"puzzle_order"`
	Overall       OverallStats         `json:"overall"`
	Funnel        []FunnelEntry        `json:"funnel"`
	FirstTry      []FirstTryEntry      `json:"first_try"`
	Improvement   []ImprovementEntry   `json:"improvement"`
	TimeByAttempt []PuzzleAttemptTimes `json:"time_by_attempt"`
}

// BuildReport runs every aggregator over events and assembles the results
func BuildReport(events []AttemptEvent, order PuzzleOrder, now time.Time) *Report {
	report := newReport(events, order, now)
	report.Overall = ComputeOverallStats(events)
	report.Funnel = ComputeFunnel(events, order)
	report.FirstTry = ComputeFirstTry(events, order)
	report.Improvement = ComputeImprovement(events, order)
	report.TimeByAttempt = ComputeTimeByAttempt(events)
	return report.normalize()
}

func newReport(events []AttemptEvent, order PuzzleOrder, now time.Time) *Report {
	return &Report{
		GeneratedAt: now.UTC(),
		EventCount:  len(events),
		PuzzleOrder: order.IDs(),
	}
}

// normalize replaces nil slices so every list serializes as [] rather than null
func (r *Report) normalize() *Report {
	if r.Overall.Puzzles == nil {
		r.Overall.Puzzles = []PuzzleSummary{}
	}
	if r.Funnel == nil {
		r.Funnel = []FunnelEntry{}
	}
	if r.FirstTry == nil {
		r.FirstTry = []FirstTryEntry{}
	}
	if r.Improvement == nil {
		r.Improvement = []ImprovementEntry{}
	}
	if r.TimeByAttempt == nil {
		r.TimeByAttempt = []PuzzleAttemptTimes{}
	}
	if r.PuzzleOrder == nil {
		r.PuzzleOrder = []string{}
	}
	return r
}

// TimeByAttemptByPuzzle reshapes time-by-attempt entries into an object keyed by
// puzzle id, the shape dashboard clients of /api/analytics/time-by-attempt expect.
func TimeByAttemptByPuzzle(entries []PuzzleAttemptTimes) map[string][]AttemptTiming {
	out := make(map[string][]AttemptTiming, len(entries))
	for _, entry := range entries {
		out[entry.PuzzleID] = entry.Attempts
	}
	return out
}
