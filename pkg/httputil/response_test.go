package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "logged"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"logged"}`, rec.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, []int{}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		code    int
		message string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "Missing required fields") }, http.StatusBadRequest, "Missing required fields"},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "down") }, http.StatusServiceUnavailable, "down"},
		{"error", func(w http.ResponseWriter) { WriteError(w, http.StatusConflict, errors.New("boom")) }, http.StatusConflict, "boom"},
		{"internal hides detail", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}
