package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/api"
	"github.com/platinummonkey/puzzlelog/pkg/archive"
	"github.com/platinummonkey/puzzlelog/pkg/cache"
	"github.com/platinummonkey/puzzlelog/pkg/config"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
	"github.com/platinummonkey/puzzlelog/pkg/storage"
)

// App holds the wired components. Optional parts are nil when disabled.
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Health   *observability.HealthChecker

	Store    storage.Store
	Redis    *redis.Client
	Cache    *cache.ReportCache
	Service  *analytics.Service
	Recorder *ingest.Recorder
	Archiver *archive.Archiver
}

// Option configures New
type Option func(*options)

type options struct {
	store storage.Store
}

// WithStore uses an already opened store instead of opening one from config
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// New builds every component named by cfg. On error, whatever was already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, opts ...Option) (a *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	order, err := cfg.PuzzleOrder()
	if err != nil {
		return nil, fmt.Errorf("invalid puzzle order: %w", err)
	}

	a = &App{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthChecker(cfg.Observability.OTelServiceVersion),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if cfg.Observability.MetricsEnabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	a.Store = o.store
	if a.Store == nil {
		if a.Store, err = storage.Open(ctx, cfg.Storage, logger); err != nil {
			return a, fmt.Errorf("failed to open storage: %w", err)
		}
	}
	a.Health.AddPinger("storage", a.Store)

	serviceOpts := []analytics.Option{
		analytics.WithLogger(logger),
		analytics.WithMetrics(a.Metrics),
	}
	recorderOpts := []ingest.RecorderOption{
		ingest.WithLogger(logger),
		ingest.WithMetrics(a.Metrics),
	}

	if cfg.Cache.Enabled {
		cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(a.Metrics)}
		if cfg.Cache.Redis.URL != "" {
			if a.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.Redis); err != nil {
				return a, err
			}
			cacheOpts = append(cacheOpts, cache.WithRedis(a.Redis))
			a.Health.AddRedis("redis", a.Redis)
		}
		a.Cache = cache.New(cfg.Cache.Config, cacheOpts...)
		serviceOpts = append(serviceOpts, analytics.WithReportCache(a.Cache))
		recorderOpts = append(recorderOpts, ingest.WithInvalidator(a.Cache))
	}

	a.Service = analytics.NewService(a.Store, order, serviceOpts...)
	a.Recorder = ingest.NewRecorder(a.Store, a.Store, recorderOpts...)

	if a.Archiver, err = newArchiver(ctx, cfg.Archive, logger, a.Metrics); err != nil {
		return a, err
	}

	logger.WithFields(map[string]interface{}{
		"storage":      cfg.Storage.Type,
		"cache":        cfg.Cache.Enabled,
		"redis":        a.Redis != nil,
		"archive":      cfg.Archive.Backend,
		"puzzle_order": order.String(),
	}).Info("Application components initialized")
	return a, nil
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig, logger *observability.Logger, metrics *observability.Metrics) (*archive.Archiver, error) {
	var (
		backend archive.Backend
		err     error
	)
	switch cfg.Backend {
	case config.ArchiveFilesystem:
		backend, err = archive.NewFileBackend(cfg.Dir)
	case config.ArchiveS3:
		backend, err = archive.NewS3Backend(ctx, cfg.S3)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s archive: %w", cfg.Backend, err)
	}
	return archive.New(backend, archive.WithLogger(logger), archive.WithMetrics(metrics)), nil
}

// Handler builds the HTTP server over the app's components
func (a *App) Handler() *api.Server {
	opts := []api.Option{
		api.WithLogger(a.Logger),
		api.WithHealthChecker(a.Health),
		api.WithCORSOrigins(a.Config.Server.CORSOrigins),
		api.WithMaxBodyBytes(a.Config.Server.MaxBodyBytes),
		api.WithTracing(a.Config.Observability.OTelEnabled),
	}
	if a.Metrics != nil {
		opts = append(opts, api.WithMetrics(a.Metrics, a.Registry))
	}
	return api.NewServer(a.Service, a.Recorder, opts...)
}

// Close releases the store and Redis connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}
