package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/cache"
	"github.com/platinummonkey/puzzlelog/pkg/config"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
	"github.com/platinummonkey/puzzlelog/pkg/storage"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Analytics.PuzzleOrder = []string{"puzzle1", "puzzle2"}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func postLog(t *testing.T, h http.Handler, session, puzzle string, seconds int) {
	t.Helper()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := json.Marshal(map[string]string{
		"session_id": session,
		"puzzle_id":  puzzle,
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(time.Duration(seconds) * time.Second).Format(time.RFC3339),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(string(body))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNew_Defaults(t *testing.T) {
	a := newTestApp(t, nil)

	assert.IsType(t, &storage.MemoryStore{}, a.Store)
	assert.NotNil(t, a.Cache)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Archiver)
	assert.NotNil(t, a.Metrics)
	assert.Equal(t, 2, a.Service.Order().Len())
}

func TestNew_InvalidPuzzleOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Analytics.PuzzleOrder = []string{"a", "a"}
	_, err := New(context.Background(), cfg, observability.NopLogger())
	assert.ErrorIs(t, err, analytics.ErrDuplicatePuzzleID)
}

func TestNew_UnreachableRedisClosesStore(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := config.Default()
	cfg.Cache.Redis.URL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, observability.NopLogger(), WithStore(store))
	require.Error(t, err)
	assert.ErrorIs(t, store.PingContext(context.Background()), storage.ErrClosed)
}

func TestApp_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestApp(t, func(c *config.Config) {
		c.Cache.Redis.URL = "redis://" + mr.Addr()
	})
	h := a.Handler()

	postLog(t, h, "s1", "puzzle1", 40)
	postLog(t, h, "s1", "puzzle2", 20)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/funnel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"puzzle_id":"puzzle1","started":1,"completed":1},{"puzzle_id":"puzzle2","started":1,"completed":1}]`, rec.Body.String())
	assert.True(t, mr.Exists(cache.DefaultKeyPrefix+"all"), "report should be cached in redis")

	// A new attempt invalidates both cache layers.
	postLog(t, h, "s2", "puzzle1", 10)
	assert.Equal(t, []string{cache.DefaultKeyPrefix + "generation"}, mr.Keys())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats analytics.OverallStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalSessions)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "puzzlelog_attempts_recorded_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_MetricsDisabled(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Observability.MetricsEnabled = false })
	assert.Nil(t, a.Metrics)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunReportJob(t *testing.T) {
	dir := t.TempDir()
	a := newTestApp(t, func(c *config.Config) {
		c.Archive.Backend = config.ArchiveFilesystem
		c.Archive.Dir = dir
	})
	postLog(t, a.Handler(), "s1", "puzzle1", 40)

	result, err := a.RunReportJob(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.EventCount)
	require.NotEmpty(t, result.ArchiveKey)

	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(result.ArchiveKey)))
	assert.NoError(t, err)

	cached, ok := a.Cache.Get(context.Background(), analytics.EventFilter{}.Key())
	require.True(t, ok)
	assert.Same(t, result.Report, cached)
}

func TestRunReportJob_NoArchive(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.Cache.Enabled = false })

	result, err := a.RunReportJob(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.ArchiveKey)
	assert.Equal(t, 0, result.Report.EventCount)
	assert.Equal(t, []analytics.FunnelEntry{
		{PuzzleID: "puzzle1"}, {PuzzleID: "puzzle2"},
	}, result.Report.Funnel)
}

func TestRunReportJob_StoreFailure(t *testing.T) {
	a := newTestApp(t, nil)
	require.NoError(t, a.Store.Close())

	_, err := a.RunReportJob(context.Background())
	assert.ErrorIs(t, err, analytics.ErrSnapshotUnavailable)
}
