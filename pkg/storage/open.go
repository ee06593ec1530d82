package storage

import (
	"context"
	"fmt"

	"github.com/platinummonkey/puzzlelog/pkg/observability"
	"github.com/platinummonkey/puzzlelog/pkg/storage/postgres"
	"github.com/platinummonkey/puzzlelog/pkg/storage/sqlite"
)

// Open connects to the configured backend and prepares its schema
func Open(ctx context.Context, cfg Config, logger *observability.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	switch cfg.Type {
	case TypeSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Using sqlite storage")
		return store, nil

	case TypePostgres:
		conns, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
			PrimaryURL:  cfg.PostgresURL,
			ReplicaURLs: cfg.PostgresReplicaURLs,
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.PostgresTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if conns.ReplicaCount() > 0 {
			// Outlives the startup context; stopped by Close.
			conns.StartHealthCheckRoutine(context.WithoutCancel(ctx), 0)
		}
		store := postgres.NewStore(conns, logger)
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.WithField("replicas", len(cfg.PostgresReplicaURLs)).Info("Using postgres storage")
		return store, nil

	default:
		logger.Warn("Using in-memory storage; data will not survive a restart")
		return NewMemoryStore(), nil
	}
}
