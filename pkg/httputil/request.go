package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyBody is returned by ParseJSON when the request has no body
var ErrEmptyBody = errors.New("request body is empty")

// ParseJSON decodes the JSON request body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes a 400 response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseQueryTime parses an RFC 3339 query parameter. A missing parameter
// yields the zero time.
func ParseQueryTime(r *http.Request, key string) (time.Time, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RFC 3339 time for query param %s: %s", key, str)
	}
	return t.UTC(), nil
}
