package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPuzzleOrder(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		order, err := NewPuzzleOrder("p1", "p2", "p3")
		require.NoError(t, err)
		assert.Equal(t, 3, order.Len())
		assert.Equal(t, []string{"p1", "p2", "p3"}, order.IDs())
		assert.True(t, order.Contains("p2"))
		assert.False(t, order.Contains("p4"))
		assert.Equal(t, "[p1 p2 p3]", order.String())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewPuzzleOrder()
		assert.ErrorIs(t, err, ErrEmptyPuzzleOrder)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := NewPuzzleOrder("p1", "")
		assert.ErrorIs(t, err, ErrEmptyPuzzleID)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewPuzzleOrder("p1", "p2", "p1")
		assert.ErrorIs(t, err, ErrDuplicatePuzzleID)
	})

	t.Run("must panics", func(t *testing.T) {
		assert.Panics(t, func() { MustPuzzleOrder() })
	})
}

func TestPuzzleOrder_IDsIsACopy(t *testing.T) {
	order := MustPuzzleOrder("p1", "p2")
	ids := order.IDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"p1", "p2"}, order.IDs())
}

func TestPuzzleOrder_Next(t *testing.T) {
	order := MustPuzzleOrder("p1", "p2", "p3")

	next, ok := order.Next("p1")
	assert.True(t, ok)
	assert.Equal(t, "p2", next)

	_, ok = order.Next("p3")
	assert.False(t, ok, "last puzzle has no successor")

	_, ok = order.Next("unknown")
	assert.False(t, ok)
}

func TestEventFilter(t *testing.T) {
	e := ev("s1", "p1", 1, 10)
	e.DeviceType = "mobile"

	tests := []struct {
		name    string
		filter  EventFilter
		matches bool
	}{
		{"zero filter", EventFilter{}, true},
		{"device match", EventFilter{DeviceType: "mobile"}, true},
		{"device mismatch", EventFilter{DeviceType: "desktop"}, false},
		{"from inclusive", EventFilter{From: e.StartTime}, true},
		{"to inclusive", EventFilter{To: e.StartTime}, true},
		{"from after start", EventFilter{From: e.StartTime.Add(time.Second)}, false},
		{"to before start", EventFilter{To: e.StartTime.Add(-time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, tt.filter.Matches(e))
		})
	}
}

func TestEventFilter_Key(t *testing.T) {
	assert.Equal(t, "all", EventFilter{}.Key())

	from := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	key := EventFilter{From: from, DeviceType: "mobile"}.Key()
	assert.Equal(t, "from=2025-01-02T02:04:05Z;to=-;device=mobile", key)
}

func TestEventFilter_Apply(t *testing.T) {
	events := []AttemptEvent{ev("s1", "p1", 1, 10), ev("s1", "p1", 2, 10), ev("s1", "p1", 3, 10)}

	assert.Equal(t, events, EventFilter{}.Apply(events))

	filtered := EventFilter{From: events[1].StartTime}.Apply(events)
	require.Len(t, filtered, 2)
	assert.Equal(t, 2, filtered[0].AttemptNumber)
	assert.Equal(t, 3, filtered[1].AttemptNumber)
}
