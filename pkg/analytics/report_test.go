package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReport_MissingPuzzleCoverage(t *testing.T) {
	order := MustPuzzleOrder("p1", "p2", "p3", "p4")
	events := []AttemptEvent{
		ev("s1", "p1", 1, 30),
		ev("s1", "p2", 1, 40),
		ev("s1", "p3", 1, 20),
	}
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	report := BuildReport(events, order, now)

	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, 3, report.EventCount)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, report.PuzzleOrder)

	for _, p := range report.Overall.Puzzles {
		assert.NotEqual(t, "p4", p.PuzzleID)
	}
	require.Len(t, report.Funnel, 4)
	assert.Equal(t, FunnelEntry{PuzzleID: "p4"}, report.Funnel[3])
	require.Len(t, report.FirstTry, 4)
	assert.Equal(t, FirstTryEntry{PuzzleID: "p4"}, report.FirstTry[3])
	require.Len(t, report.Improvement, 3)
	for _, entry := range report.Improvement {
		assert.NotEqual(t, "p4", entry.PuzzleID)
	}
}

func TestBuildReport_EmptySerializesEmptyLists(t *testing.T) {
	report := BuildReport(nil, MustPuzzleOrder("p1"), time.Unix(0, 0))

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.JSONEq(t, `[]`, string(decoded["improvement"]))
	assert.JSONEq(t, `[]`, string(decoded["time_by_attempt"]))
	assert.JSONEq(t, `{"total_sessions":0,"puzzles":[]}`, string(decoded["overall"]))
}

func TestTimeByAttemptByPuzzle(t *testing.T) {
	out := TimeByAttemptByPuzzle([]PuzzleAttemptTimes{
		{PuzzleID: "p1", Attempts: []AttemptTiming{{AttemptNumber: 1, AvgDurationSeconds: 10}}},
	})
	assert.Equal(t, map[string][]AttemptTiming{
		"p1": {{AttemptNumber: 1, AvgDurationSeconds: 10}},
	}, out)
}
