package analytics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// EventSource supplies a materialized snapshot of attempt events.
// Implementations must return a slice the caller may read freely; the
// aggregators never write to it.
type EventSource interface {
	FetchEvents(ctx context.Context, filter EventFilter) ([]AttemptEvent, error)
}

// ReportCache memoizes assembled reports by key.
// Implementations treat their own failures as misses.
type ReportCache interface {
	Get(ctx context.Context, key string) (*Report, bool)
	// Generation identifies the current cache state. Read it before fetching
	// the snapshot a report is built from.
	Generation(ctx context.Context) Generation
	// Set stores report unless the cache was invalidated after gen was read.
	Set(ctx context.Context, key string, report *Report, gen Generation)
}

// Generation is a cache state token. Local counts invalidations seen by this
// process; Shared counts invalidations across every process using the same
// shared cache.
type Generation struct {
	Local  uint64
	Shared uint64
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithReportCache routes every query through a cached full report
func WithReportCache(cache ReportCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithClock overrides the time source used for Report.GeneratedAt
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service binds an EventSource to the aggregators.
// Every call fetches exactly one snapshot and computes over it.
type Service struct {
	source  EventSource
	order   PuzzleOrder
	logger  *observability.Logger
	metrics *observability.Metrics
	cache   ReportCache
	now     func() time.Time
}

// NewService creates a new analytics service
func NewService(source EventSource, order PuzzleOrder, opts ...Option) *Service {
	s := &Service{
		source: source,
		order:  order,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Order returns the puzzle order the service was built with
func (s *Service) Order() PuzzleOrder {
	return s.order
}

// Overall returns overall stats for the filtered snapshot
func (s *Service) Overall(ctx context.Context, filter EventFilter) (OverallStats, error) {
	if s.cache != nil {
		report, err := s.Report(ctx, filter)
		if err != nil {
			return OverallStats{}, err
		}
		return report.Overall, nil
	}

	var out OverallStats
	err := s.computeOne(ctx, filter, "overall", func(events []AttemptEvent) {
		out = ComputeOverallStats(events)
	})
	return out, err
}

// Funnel returns the completion funnel for the filtered snapshot
func (s *Service) Funnel(ctx context.Context, filter EventFilter) ([]FunnelEntry, error) {
	if s.cache != nil {
		report, err := s.Report(ctx, filter)
		if err != nil {
			return nil, err
		}
		return report.Funnel, nil
	}

	var out []FunnelEntry
	err := s.computeOne(ctx, filter, "funnel", func(events []AttemptEvent) {
		out = ComputeFunnel(events, s.order)
	})
	return out, err
}

// FirstTry returns first-try success rates for the filtered snapshot
func (s *Service) FirstTry(ctx context.Context, filter EventFilter) ([]FirstTryEntry, error) {
	if s.cache != nil {
		report, err := s.Report(ctx, filter)
		if err != nil {
			return nil, err
		}
		return report.FirstTry, nil
	}

	var out []FirstTryEntry
	err := s.computeOne(ctx, filter, "first_try", func(events []AttemptEvent) {
		out = ComputeFirstTry(events, s.order)
	})
	return out, err
}

// Improvement returns improvement scores for the filtered snapshot
func (s *Service) Improvement(ctx context.Context, filter EventFilter) ([]ImprovementEntry, error) {
	if s.cache != nil {
		report, err := s.Report(ctx, filter)
		if err != nil {
			return nil, err
		}
		return report.Improvement, nil
	}

	var out []ImprovementEntry
	err := s.computeOne(ctx, filter, "improvement", func(events []AttemptEvent) {
		out = ComputeImprovement(events, s.order)
	})
	return out, err
}

// TimeByAttempt returns average durations per attempt number for the filtered snapshot
func (s *Service) TimeByAttempt(ctx context.Context, filter EventFilter) ([]PuzzleAttemptTimes, error) {
	if s.cache != nil {
		report, err := s.Report(ctx, filter)
		if err != nil {
			return nil, err
		}
		return report.TimeByAttempt, nil
	}

	var out []PuzzleAttemptTimes
	err := s.computeOne(ctx, filter, "time_by_attempt", func(events []AttemptEvent) {
		out = ComputeTimeByAttempt(events)
	})
	return out, err
}

// Report returns the full report for the filter, from the cache when possible
func (s *Service) Report(ctx context.Context, filter EventFilter) (*Report, error) {
	key := filter.Key()
	var gen Generation
	if s.cache != nil {
		if report, ok := s.cache.Get(ctx, key); ok {
			return report, nil
		}
		gen = s.cache.Generation(ctx)
	}

	report, err := s.BuildReport(ctx, filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, report, gen)
	}
	return report, nil
}

// BuildReport fetches a fresh snapshot and runs every aggregator over it
// concurrently, bypassing the cache. It returns either a complete report or
// an error, never both.
func (s *Service) BuildReport(ctx context.Context, filter EventFilter) (*Report, error) {
	ctx, span := observability.Tracer().Start(ctx, "analytics.BuildReport")
	defer span.End()

	events, err := s.snapshot(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return nil, err
	}

	report := newReport(events, s.order, s.now())

	// Each goroutine writes a distinct field; events is shared read-only.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.run(gctx, "overall", func() { report.Overall = ComputeOverallStats(events) })
	})
	g.Go(func() error {
		return s.run(gctx, "funnel", func() { report.Funnel = ComputeFunnel(events, s.order) })
	})
	g.Go(func() error {
		return s.run(gctx, "first_try", func() { report.FirstTry = ComputeFirstTry(events, s.order) })
	})
	g.Go(func() error {
		return s.run(gctx, "improvement", func() { report.Improvement = ComputeImprovement(events, s.order) })
	})
	g.Go(func() error {
		return s.run(gctx, "time_by_attempt", func() { report.TimeByAttempt = ComputeTimeByAttempt(events) })
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("puzzlelog.events", len(events)))
	return report.normalize(), nil
}

// snapshot fetches the events for one request. Failures are not retried.
func (s *Service) snapshot(ctx context.Context, filter EventFilter) ([]AttemptEvent, error) {
	start := time.Now()
	events, err := s.source.FetchEvents(ctx, filter)
	s.metrics.RecordSnapshot(len(events), time.Since(start), err)
	if err != nil {
		observability.UpdateLoggerWithTraceContext(ctx, s.logger).
			WithError(err).
			WithField("filter", filter.Key()).
			Error("Failed to fetch event snapshot")
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	return events, nil
}

func (s *Service) computeOne(ctx context.Context, filter EventFilter, name string, fn func([]AttemptEvent)) error {
	events, err := s.snapshot(ctx, filter)
	if err != nil {
		return err
	}
	return s.run(ctx, name, func() { fn(events) })
}

// run executes one aggregator, converting a panic into ErrAggregationFailed
func (s *Service) run(ctx context.Context, name string, fn func()) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			err = fmt.Errorf("%w: %s: %w", ErrAggregationFailed, name, perr)
			s.logger.WithField("aggregator", name).WithError(perr).Error("Aggregator aborted")
		}
		s.metrics.RecordAggregation(name, time.Since(start))
	}()

	fn()
	return nil
}
