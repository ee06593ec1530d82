package analytics

import "sort"

// PuzzleSummary contains per-puzzle totals for the overall stats report
type PuzzleSummary struct {
	PuzzleID                string `json:"puzzle_id"`
	Completions             int    `json:"completions"`
	AvgDurationSeconds      int    `json:"avg_duration_seconds"`
	MaxAttemptsByAnySession int    `json:"max_attempts_by_any_session"`
}

// OverallStats contains the session count and a summary of every observed puzzle
type OverallStats struct {
	TotalSessions int             `json:"total_sessions"`
	Puzzles       []PuzzleSummary `json:"puzzles"`
}

// ComputeOverallStats summarizes every puzzle present in the snapshot, ordered
// by puzzle id. Puzzles outside any configured order are included; puzzles with
// no events never appear.
func ComputeOverallStats(events []AttemptEvent) OverallStats {
	sessions := make(set)
	for _, e := range events {
		sessions.add(e.SessionID)
	}

	byPuzzle := GroupBy(events, ByPuzzle)
	stats := OverallStats{
		TotalSessions: len(sessions),
		Puzzles:       make([]PuzzleSummary, 0, len(byPuzzle)),
	}

	for _, puzzleID := range sortedKeys(byPuzzle) {
		group := byPuzzle[puzzleID]
		durations := make([]int, len(group))
		maxAttempt := 0
		for i, e := range group {
			durations[i] = e.DurationSeconds
			if e.AttemptNumber > maxAttempt {
				maxAttempt = e.AttemptNumber
			}
		}

		stats.Puzzles = append(stats.Puzzles, PuzzleSummary{
			PuzzleID:                puzzleID,
			Completions:             len(group),
			AvgDurationSeconds:      truncatedMean(durations),
			MaxAttemptsByAnySession: maxAttempt,
		})
	}

	return stats
}

// AttemptTiming is the average duration of one attempt number
type AttemptTiming struct {
	AttemptNumber      int `json:"attempt_number"`
	AvgDurationSeconds int `json:"avg_duration_seconds"`
}

// PuzzleAttemptTimes lists the average duration per attempt number for one puzzle
type PuzzleAttemptTimes struct {
	PuzzleID string          `json:"puzzle_id"`
	Attempts []AttemptTiming `json:"attempts"`
}

// ComputeTimeByAttempt averages durations per (puzzle, attempt number).
// Puzzles are ordered by id and attempts by ascending attempt number.
func ComputeTimeByAttempt(events []AttemptEvent) []PuzzleAttemptTimes {
	byPuzzle := GroupBy(events, ByPuzzle)
	out := make([]PuzzleAttemptTimes, 0, len(byPuzzle))

	for _, puzzleID := range sortedKeys(byPuzzle) {
		durations := make(map[int][]int)
		for _, e := range byPuzzle[puzzleID] {
			durations[e.AttemptNumber] = append(durations[e.AttemptNumber], e.DurationSeconds)
		}

		attempts := make([]int, 0, len(durations))
		for n := range durations {
			attempts = append(attempts, n)
		}
		sort.Ints(attempts)

		entry := PuzzleAttemptTimes{
			PuzzleID: puzzleID,
			Attempts: make([]AttemptTiming, 0, len(attempts)),
		}
		for _, n := range attempts {
			entry.Attempts = append(entry.Attempts, AttemptTiming{
				AttemptNumber:      n,
				AvgDurationSeconds: truncatedMean(durations[n]),
			})
		}
		out = append(out, entry)
	}

	return out
}
