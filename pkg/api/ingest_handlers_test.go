package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
)

func TestLogAttempt(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, 1, ts.logAttempt(t, "s1", "puzzle1", "2025-03-01T12:00:00Z", "2025-03-01T12:00:42.9Z"))
	assert.Equal(t, 2, ts.logAttempt(t, "s1", "puzzle1", "2025-03-01T12:01:00", "2025-03-01T12:01:10"))
	assert.Equal(t, 1, ts.logAttempt(t, "s2", "puzzle1", "2025-03-01T12:00:00Z", "2025-03-01T12:00:05Z"))

	events, err := ts.store.FetchEvents(context.Background(), analytics.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 42, events[0].DurationSeconds)
	assert.Equal(t, "unknown", events[0].DeviceType)
}

func TestLogAttempt_DeviceType(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/log",
		`{"session_id":"s1","puzzle_id":"puzzle1","start_time":"2025-03-01T12:00:00Z","end_time":"2025-03-01T12:00:10Z","device_type":"mobile"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"logged","attempt_number":1}`, rec.Body.String())

	events, err := ts.store.FetchEvents(context.Background(), analytics.EventFilter{DeviceType: "mobile"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLogAttempt_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "missing session",
			body:    `{"puzzle_id":"puzzle1","start_time":"2025-03-01T12:00:00Z","end_time":"2025-03-01T12:00:10Z"}`,
			message: "Missing required fields",
		},
		{
			name:    "empty object",
			body:    `{}`,
			message: "Missing required fields",
		},
		{
			name: "bad timestamp",
			body: `{"session_id":"s1","puzzle_id":"puzzle1","start_time":"yesterday","end_time":"2025-03-01T12:00:10Z"}`,
		},
		{
			name: "end before start",
			body: `{"session_id":"s1","puzzle_id":"puzzle1","start_time":"2025-03-01T12:00:10Z","end_time":"2025-03-01T12:00:00Z"}`,
		},
		{
			name: "not json",
			body: `session_id=s1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/log", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			} else {
				assert.NotEmpty(t, body["error"])
			}

			events, err := ts.store.FetchEvents(context.Background(), analytics.EventFilter{})
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestLogAttempt_StoreFailure(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.Close())

	rec := ts.do(t, http.MethodPost, "/api/log",
		`{"session_id":"s1","puzzle_id":"puzzle1","start_time":"2025-03-01T12:00:00Z","end_time":"2025-03-01T12:00:10Z"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSubmitFeedback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/feedback",
		`{"experience":"fun","learned":"4","favorite":"puzzle2","moreGames":"yes"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"submitted"}`, rec.Body.String())

	saved := ts.store.Feedback()
	require.Len(t, saved, 1)
	assert.Equal(t, 4, saved[0].Learned)
	assert.Equal(t, "unknown", saved[0].SessionID)
}

func TestSubmitFeedback_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing learned", `{"experience":"fun","favorite":"puzzle2","moreGames":"yes"}`},
		{"non numeric learned", `{"experience":"fun","learned":"lots","favorite":"puzzle2","moreGames":"yes"}`},
		{"learned out of range", `{"experience":"fun","learned":1e30,"favorite":"puzzle2","moreGames":"yes"}`},
		{"empty body", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPost, "/api/feedback", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, ts.store.Feedback())
		})
	}
}
