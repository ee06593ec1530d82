package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/puzzlelog/pkg/app"
	"github.com/platinummonkey/puzzlelog/pkg/config"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

var (
	schedule   = flag.String("schedule", "", "Cron schedule for report builds (default: PUZZLELOG_ARCHIVE_SCHEDULE)")
	runOnce    = flag.Bool("run-once", false, "Build and archive one report, then exit")
	jobTimeout = flag.Duration("timeout", 5*time.Minute, "Upper bound on a single report build")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *schedule == "" {
		*schedule = cfg.Archive.Schedule
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("component", "aggregator")
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer func() { _ = observability.ShutdownOTel(context.Background(), providers, logger) }()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize application")
		return 1
	}
	defer application.Close()

	if *runOnce {
		if err := runJob(ctx, application, logger); err != nil {
			logger.WithError(err).Error("Report job failed")
			return 1
		}
		return 0
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(*schedule, func() {
		defer observability.RecoverPanic(logger, "report job")
		if err := runJob(ctx, application, logger); err != nil {
			logger.WithError(err).Error("Report job failed")
		}
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", *schedule).Error("Invalid report schedule")
		return 1
	}

	c.Start()
	logger.WithField("schedule", *schedule).Info("Puzzlelog aggregator started")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("Shutting down, waiting for running jobs")
	<-c.Stop().Done()
	logger.Info("Aggregator stopped")
	return 0
}

func runJob(ctx context.Context, application *app.App, logger *observability.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, *jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := application.RunReportJob(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
		"archive_key": result.ArchiveKey,
	}).Debug("Report job finished")
	return nil
}
