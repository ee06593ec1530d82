package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/cache"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
	"github.com/platinummonkey/puzzlelog/pkg/storage"
)

var testOrder = analytics.MustPuzzleOrder("puzzle1", "puzzle2", "puzzle3")

type testServer struct {
	*Server
	store *storage.MemoryStore
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	reportCache := cache.New(cache.Config{L1Size: 16})
	service := analytics.NewService(store, testOrder, analytics.WithReportCache(reportCache))
	recorder := ingest.NewRecorder(store, store, ingest.WithInvalidator(reportCache))

	return &testServer{Server: NewServer(service, recorder, opts...), store: store}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, target, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) logAttempt(t *testing.T, session, puzzle, start, end string) int {
	t.Helper()
	body := `{"session_id":"` + session + `","puzzle_id":"` + puzzle + `","start_time":"` + start + `","end_time":"` + end + `"}`
	rec := ts.do(t, http.MethodPost, "/api/log", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "logged", resp.Status)
	return resp.AttemptNumber
}

func TestServer_NotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/log", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RequestIDAndCORS(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	req.Header.Set("Origin", "https://game.example")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_BodyLimit(t *testing.T) {
	ts := newTestServer(t, WithMaxBodyBytes(32))
	rec := ts.do(t, http.MethodPost, "/api/log", `{"session_id":"`+strings.Repeat("x", 64)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	checker := observability.NewHealthChecker("test")
	checker.AddCheck("store", true, func(ctx context.Context) error { return nil })

	ts := newTestServer(t, WithMetrics(metrics, registry), WithHealthChecker(checker))
	ts.logAttempt(t, "s1", "puzzle1", "2025-03-01T12:00:00Z", "2025-03-01T12:00:30Z")

	rec := ts.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `puzzlelog_http_requests_total{method="POST",path="/api/log",status="200"} 1`)
}

func TestServer_UnhealthyDependency(t *testing.T) {
	checker := observability.NewHealthChecker("test")
	checker.AddCheck("store", true, func(ctx context.Context) error { return errors.New("down") })

	ts := newTestServer(t, WithHealthChecker(checker))
	rec := ts.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Tracing(t *testing.T) {
	ts := newTestServer(t, WithTracing(true))
	rec := ts.do(t, http.MethodGet, "/api/analytics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
