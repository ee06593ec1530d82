// Package analytics derives behavioral metrics from the puzzle attempt log.
//
// # Overview
//
// Every logged attempt is an AttemptEvent: one play of one puzzle by one session.
// The aggregators in this package are pure functions over a read-only snapshot of
// those events. They never mutate their input, hold no shared state and can run
// concurrently against the same snapshot.
//
// # Metrics
//
// Overall stats:
//   - Distinct sessions
//   - Per puzzle: completions, average duration, highest attempt number
//
// Completion funnel (ordered by PuzzleOrder):
//   - Sessions that started each puzzle
//   - Sessions that progressed to the next puzzle (the last puzzle counts as
//     completed once played)
//
// First-try success:
//   - Sessions whose only recorded attempt at a puzzle is attempt number 1
//
// Improvement:
//   - Average first-attempt and last-attempt durations per puzzle, and the difference
//
// Time by attempt:
//   - Average duration per puzzle per attempt number
//
// # Rounding
//
// Durations are averaged with integer truncation. Percentages are rounded to one
// decimal place. Every percentage goes through the same zero-denominator policy:
// a zero denominator yields 0.
//
// # Usage Example
//
//	order, err := analytics.NewPuzzleOrder("puzzle1", "puzzle2", "puzzle3")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	service := analytics.NewService(store, order)
//	funnel, err := service.Funnel(ctx, analytics.EventFilter{})
//	for _, stage := range funnel {
//		fmt.Printf("%s: %d started, %d completed\n", stage.PuzzleID, stage.Started, stage.Completed)
//	}
//
// Pure use without a store:
//
//	report := analytics.BuildReport(events, order, time.Now())
//
// # Related Packages
//
//   - pkg/ingest: Validates and records attempts
//   - pkg/storage: Supplies event snapshots
//   - pkg/cache: Memoizes assembled reports
package analytics
