package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

type fakeSource struct {
	mu      sync.Mutex
	events  []AttemptEvent
	err     error
	calls   int
	filters []EventFilter
}

func (f *fakeSource) FetchEvents(ctx context.Context, filter EventFilter) ([]AttemptEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return filter.Apply(f.events), nil
}

type mapCache struct {
	mu      sync.Mutex
	reports map[string]*Report
	gen     uint64
}

func newMapCache() *mapCache {
	return &mapCache{reports: make(map[string]*Report)}
}

func (c *mapCache) Get(ctx context.Context, key string) (*Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[key]
	return r, ok
}

func (c *mapCache) Generation(ctx context.Context) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Generation{Local: c.gen}
}

func (c *mapCache) Set(ctx context.Context, key string, report *Report, gen Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen.Local != c.gen {
		return
	}
	c.reports[key] = report
}

func (c *mapCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.reports = make(map[string]*Report)
}

func sampleEvents() []AttemptEvent {
	return []AttemptEvent{
		ev("s1", "p1", 1, 50),
		ev("s1", "p1", 2, 30),
		ev("s1", "p2", 1, 40),
		ev("s2", "p1", 1, 20),
	}
}

func TestService_BuildReportMatchesPureAssembly(t *testing.T) {
	order := MustPuzzleOrder("p1", "p2", "p3")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{events: sampleEvents()}

	svc := NewService(source, order, WithClock(func() time.Time { return now }))
	report, err := svc.BuildReport(context.Background(), EventFilter{})
	require.NoError(t, err)

	assert.Equal(t, BuildReport(sampleEvents(), order, now), report)
	assert.Equal(t, 1, source.calls, "one snapshot per report")
}

func TestService_SingleAggregators(t *testing.T) {
	order := MustPuzzleOrder("p1", "p2")
	svc := NewService(&fakeSource{events: sampleEvents()}, order)
	ctx := context.Background()

	overall, err := svc.Overall(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, overall.TotalSessions)

	funnel, err := svc.Funnel(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, []FunnelEntry{
		{PuzzleID: "p1", Started: 2, Completed: 1},
		{PuzzleID: "p2", Started: 1, Completed: 1},
	}, funnel)

	firstTry, err := svc.FirstTry(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, firstTry[0].SuccessRatePercent)

	improvement, err := svc.Improvement(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 35, improvement[0].AverageFirstAttemptSeconds)

	timing, err := svc.TimeByAttempt(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, timing, 2)

	assert.Equal(t, order, svc.Order())
}

func TestService_FilterIsPassedToSource(t *testing.T) {
	source := &fakeSource{events: sampleEvents()}
	svc := NewService(source, MustPuzzleOrder("p1"))

	filter := EventFilter{DeviceType: "mobile"}
	overall, err := svc.Overall(context.Background(), filter)
	require.NoError(t, err)

	assert.Equal(t, []EventFilter{filter}, source.filters)
	assert.Zero(t, overall.TotalSessions)
}

func TestService_SnapshotFailure(t *testing.T) {
	upstream := errors.New("connection reset")
	source := &fakeSource{err: upstream}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	svc := NewService(source, MustPuzzleOrder("p1"), WithMetrics(metrics))

	report, err := svc.Report(context.Background(), EventFilter{})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)
	assert.ErrorIs(t, err, upstream)

	_, err = svc.Funnel(context.Background(), EventFilter{})
	assert.ErrorIs(t, err, ErrSnapshotUnavailable)

	assert.Equal(t, 2, source.calls, "no retries")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SnapshotFetchErrorsTotal))
}

func TestService_CancelledContextYieldsNoReport(t *testing.T) {
	svc := NewService(&fakeSource{events: sampleEvents()}, MustPuzzleOrder("p1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.BuildReport(ctx, EventFilter{})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_RunConvertsPanic(t *testing.T) {
	svc := NewService(&fakeSource{}, MustPuzzleOrder("p1"))

	err := svc.run(context.Background(), "broken", func() { panic("index out of range") })
	assert.ErrorIs(t, err, ErrAggregationFailed)
	assert.Contains(t, err.Error(), "broken")
}

func TestService_ReportCache(t *testing.T) {
	source := &fakeSource{events: sampleEvents()}
	cache := newMapCache()
	svc := NewService(source, MustPuzzleOrder("p1", "p2"), WithReportCache(cache))
	ctx := context.Background()

	first, err := svc.Report(ctx, EventFilter{})
	require.NoError(t, err)

	funnel, err := svc.Funnel(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, first.Funnel, funnel)

	_, err = svc.Overall(ctx, EventFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls, "cached report serves every view")

	_, err = svc.Overall(ctx, EventFilter{DeviceType: "mobile"})
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "different filter, different key")
}

// pausingSource hands out its snapshot, then blocks until released
type pausingSource struct {
	*fakeSource
	fetched chan struct{}
	release chan struct{}
}

func (p *pausingSource) FetchEvents(ctx context.Context, filter EventFilter) ([]AttemptEvent, error) {
	events, err := p.fakeSource.FetchEvents(ctx, filter)
	p.fetched <- struct{}{}
	<-p.release
	return events, err
}

func TestService_ReportBuiltBeforeInvalidationIsNotCached(t *testing.T) {
	base := &fakeSource{events: sampleEvents()}
	source := &pausingSource{fakeSource: base, fetched: make(chan struct{}), release: make(chan struct{})}
	cache := newMapCache()
	svc := NewService(source, MustPuzzleOrder("p1", "p2"), WithReportCache(cache))
	ctx := context.Background()

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := svc.Report(ctx, EventFilter{})
		done <- result{report, err}
	}()

	<-source.fetched
	// A write lands after the snapshot was taken.
	base.mu.Lock()
	base.events = append(base.events, ev("s3", "p2", 1, 15))
	base.mu.Unlock()
	cache.invalidate()
	close(source.release)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Equal(t, 4, stale.report.EventCount, "the in-flight caller still gets its snapshot")

	_, cached := cache.Get(ctx, EventFilter{}.Key())
	assert.False(t, cached, "a report older than the invalidation must not be stored")

	go func() { <-source.fetched }()
	fresh, err := svc.Report(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, fresh.EventCount)
}

func TestService_ConcurrentReports(t *testing.T) {
	svc := NewService(&fakeSource{events: sampleEvents()}, MustPuzzleOrder("p1", "p2"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := svc.BuildReport(context.Background(), EventFilter{})
			assert.NoError(t, err)
			assert.Equal(t, 4, report.EventCount)
		}()
	}
	wg.Wait()
}
