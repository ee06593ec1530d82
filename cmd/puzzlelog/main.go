package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/platinummonkey/puzzlelog/pkg/app"
	"github.com/platinummonkey/puzzlelog/pkg/config"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

func main() {
	port := flag.String("port", "", "Port to listen on (overrides PUZZLELOG_PORT)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize application")
		_ = observability.ShutdownOTel(ctx, providers, logger)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      application.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return application.Close()
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Starting puzzlelog server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		cancel()
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	cancel()
}
