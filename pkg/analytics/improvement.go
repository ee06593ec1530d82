package analytics

// ImprovementEntry compares the first and last attempt durations for a puzzle
type ImprovementEntry struct {
	PuzzleID                   string  `json:"puzzle_id"`
	AverageFirstAttemptSeconds int     `json:"average_first_attempt_seconds"`
	AverageLastAttemptSeconds  int     `json:"average_last_attempt_seconds"`
	ImprovementSeconds         int     `json:"improvement_seconds"`
	ImprovementPercent         float64 `json:"improvement_percent"`
}

// ComputeImprovement measures how much faster sessions got between their first
// and last recorded attempt at each puzzle in order.
//
// Within a (session, puzzle) group the attempts are ordered by attempt number;
// the first duration is the session's first attempt and the last duration its
// last attempt (the same value when there is a single attempt). Averages across
// sessions are truncated to whole seconds. Positive improvement means faster.
//
// Unlike the funnel and first-try reports, puzzles without any attempts are
// omitted rather than reported as zero.
func ComputeImprovement(events []AttemptEvent, order PuzzleOrder) []ImprovementEntry {
	firstDurations := make(map[string][]int, order.Len())
	lastDurations := make(map[string][]int, order.Len())

	for key, group := range GroupBy(events, BySessionPuzzle) {
		if !order.Contains(key.PuzzleID) {
			continue
		}
		sorted := SortedByAttempt(group)
		firstDurations[key.PuzzleID] = append(firstDurations[key.PuzzleID], sorted[0].DurationSeconds)
		lastDurations[key.PuzzleID] = append(lastDurations[key.PuzzleID], sorted[len(sorted)-1].DurationSeconds)
	}

	entries := make([]ImprovementEntry, 0, len(firstDurations))
	for _, puzzleID := range order.ids {
		firsts, ok := firstDurations[puzzleID]
		if !ok {
			continue
		}

		avgFirst := truncatedMean(firsts)
		avgLast := truncatedMean(lastDurations[puzzleID])
		improvement := avgFirst - avgLast

		entries = append(entries, ImprovementEntry{
			PuzzleID:                   puzzleID,
			AverageFirstAttemptSeconds: avgFirst,
			AverageLastAttemptSeconds:  avgLast,
			ImprovementSeconds:         improvement,
			ImprovementPercent:         percentTenths(float64(improvement), float64(avgFirst)),
		})
	}

	return entries
}
