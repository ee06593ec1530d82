package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDeviceType is stored when a request omits device_type
const DefaultDeviceType = "unknown"

// DefaultFeedbackSessionID is stored when feedback arrives without a session
const DefaultFeedbackSessionID = "unknown"

var (
	// ErrInvalidInput is the root of every validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingFields is returned when a required field is absent or blank
	ErrMissingFields = fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	// ErrInvalidTimestamp is returned when a timestamp cannot be parsed
	ErrInvalidTimestamp = fmt.Errorf("%w: invalid timestamp", ErrInvalidInput)
	// ErrNegativeDuration is returned when end_time precedes start_time
	ErrNegativeDuration = fmt.Errorf("%w: end_time is before start_time", ErrInvalidInput)
	// ErrInvalidScore is returned when the learned score is not an integer
	ErrInvalidScore = fmt.Errorf("%w: learned must be an integer", ErrInvalidInput)
)

// LogRequest is one attempt as submitted by the game client
type LogRequest struct {
	SessionID  string `json:"session_id"`
	PuzzleID   string `json:"puzzle_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	DeviceType string `json:"device_type,omitempty"`
}

// missing lists the required fields that are blank
func (r LogRequest) missing() []string {
	var fields []string
	if strings.TrimSpace(r.SessionID) == "" {
		fields = append(fields, "session_id")
	}
	if strings.TrimSpace(r.PuzzleID) == "" {
		fields = append(fields, "puzzle_id")
	}
	if strings.TrimSpace(r.StartTime) == "" {
		fields = append(fields, "start_time")
	}
	if strings.TrimSpace(r.EndTime) == "" {
		fields = append(fields, "end_time")
	}
	return fields
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// Score is an integer that accepts either a JSON number or a numeric string
type Score int

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrInvalidScore
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return ErrInvalidScore
		}
		n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 32)
		if err != nil {
			return ErrInvalidScore
		}
		*s = Score(n)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return ErrInvalidScore
	}
	if math.IsNaN(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return ErrInvalidScore
	}
	*s = Score(int(f))
	return nil
}

// FeedbackRequest is the end-of-game survey as submitted by the client
type FeedbackRequest struct {
	Experience string `json:"experience"`
	Learned    *Score `json:"learned"`
	Favorite   string `json:"favorite"`
	MoreGames  string `json:"moreGames"`
	SessionID  string `json:"session_id,omitempty"`
}

func (r FeedbackRequest) missing() []string {
	var fields []string
	if strings.TrimSpace(r.Experience) == "" {
		fields = append(fields, "experience")
	}
	if r.Learned == nil {
		fields = append(fields, "learned")
	}
	if strings.TrimSpace(r.Favorite) == "" {
		fields = append(fields, "favorite")
	}
	if strings.TrimSpace(r.MoreGames) == "" {
		fields = append(fields, "moreGames")
	}
	return fields
}

// Feedback is a validated survey response
type Feedback struct {
	ID         int64  `json:"id,omitempty"`
	Experience string `json:"experience"`
	Learned    int    `json:"learned"`
	Favorite   string `json:"favorite"`
	MoreGames  string `json:"more_games"`
	SessionID  string `json:"session_id"`
}
