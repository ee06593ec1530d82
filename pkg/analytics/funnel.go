package analytics

// FunnelEntry is one stage of the completion funnel
type FunnelEntry struct {
	PuzzleID  string `json:"puzzle_id"`
	Started   int    `json:"started"`
	Completed int    `json:"completed"`
}

// ComputeFunnel counts, for every puzzle in order, the sessions that played it
// and the sessions that completed it.
//
// There is no explicit completion event, so "completed" means the session also
// played the next puzzle in the order. The last puzzle counts as completed for
// every session that played it. A session that finished a puzzle and then quit
// is indistinguishable from one that gave up. Puzzles outside the order are
// ignored.
func ComputeFunnel(events []AttemptEvent, order PuzzleOrder) []FunnelEntry {
	playedByPuzzle := make(map[string]set, order.Len())
	puzzlesBySession := make(map[string]set)

	for _, e := range events {
		if !order.Contains(e.PuzzleID) {
			continue
		}
		if playedByPuzzle[e.PuzzleID] == nil {
			playedByPuzzle[e.PuzzleID] = make(set)
		}
		playedByPuzzle[e.PuzzleID].add(e.SessionID)

		if puzzlesBySession[e.SessionID] == nil {
			puzzlesBySession[e.SessionID] = make(set)
		}
		puzzlesBySession[e.SessionID].add(e.PuzzleID)
	}

	entries := make([]FunnelEntry, 0, order.Len())
	for _, puzzleID := range order.ids {
		players := playedByPuzzle[puzzleID]
		entry := FunnelEntry{PuzzleID: puzzleID, Started: len(players)}

		next, hasNext := order.Next(puzzleID)
		for sessionID := range players {
			if !hasNext || puzzlesBySession[sessionID].has(next) {
				entry.Completed++
			}
		}
		entries = append(entries, entry)
	}

	return entries
}

// FirstTryEntry reports how many sessions solved a puzzle on their only attempt
type FirstTryEntry struct {
	PuzzleID           string  `json:"puzzle_id"`
	TotalSessions      int     `json:"total_sessions"`
	FirstTrySuccesses  int     `json:"first_try_successes"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// ComputeFirstTry reports first-try success for every puzzle in order.
//
// A session is a first-try success when the set of attempt numbers it recorded
// for the puzzle is exactly {1}. Puzzles nobody attempted are reported with
// zero sessions and a zero rate.
func ComputeFirstTry(events []AttemptEvent, order PuzzleOrder) []FirstTryEntry {
	attemptsByPair := make(map[SessionPuzzle]map[int]struct{})
	for _, e := range events {
		if !order.Contains(e.PuzzleID) {
			continue
		}
		key := BySessionPuzzle(e)
		if attemptsByPair[key] == nil {
			attemptsByPair[key] = make(map[int]struct{})
		}
		attemptsByPair[key][e.AttemptNumber] = struct{}{}
	}

	totals := make(map[string]int, order.Len())
	successes := make(map[string]int, order.Len())
	for key, attempts := range attemptsByPair {
		totals[key.PuzzleID]++
		if _, first := attempts[1]; first && len(attempts) == 1 {
			successes[key.PuzzleID]++
		}
	}

	entries := make([]FirstTryEntry, 0, order.Len())
	for _, puzzleID := range order.ids {
		entries = append(entries, FirstTryEntry{
			PuzzleID:           puzzleID,
			TotalSessions:      totals[puzzleID],
			FirstTrySuccesses:  successes[puzzleID],
			SuccessRatePercent: percentTenths(float64(successes[puzzleID]), float64(totals[puzzleID])),
		})
	}

	return entries
}
