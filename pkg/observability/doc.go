// Package observability provides structured logging, Prometheus metrics, health
// checks, OpenTelemetry tracing and graceful shutdown for the puzzlelog services.
//
// # Structured Logging
//
// Loggers write one JSON object per line through logrus:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("puzzle_id", "puzzle3").Info("attempt recorded")
//
// Request scoped fields travel on the context:
//
//	ctx = observability.WithRequestID(ctx, id)
//	observability.FromContext(ctx).Warn("snapshot slow")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	observability.RegisterMetricsEndpoint(router, registry)
//
// All Record methods accept a nil *Metrics, so components can run uninstrumented.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddPinger("event_store", store)
//	checker.AddRedis("report_cache", redisClient)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
