package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/ingest"
)

// Store is the persistence collaborator: it appends validated attempts,
// assigning attempt numbers, and serves read-only event snapshots.
type Store interface {
	analytics.EventSource
	ingest.EventAppender
	ingest.FeedbackSaver

	// PingContext reports whether the backend is reachable
	PingContext(ctx context.Context) error
	Close() error
}

// Backend types
const (
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "memory", "sqlite", "postgres"

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs []string      `yaml:"postgres_replica_urls"`
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`
}

// DefaultConfig returns the default storage configuration
func DefaultConfig() Config {
	return Config{
		Type:             TypeMemory,
		SQLitePath:       "puzzlelog.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
	}
}

// Validate checks that the selected backend has what it needs
func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		return nil
	case TypeSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case TypePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.PostgresMaxConns < 1 {
			return fmt.Errorf("postgres max connections must be at least 1")
		}
	default:
		return fmt.Errorf("unknown storage type %q (want %s, %s or %s)", c.Type, TypeMemory, TypeSQLite, TypePostgres)
	}
	return nil
}
