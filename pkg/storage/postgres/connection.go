package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

// ConnectionManager holds the primary used for writes and the read replicas
// used for snapshot reads. Replicas that fail a health check leave the read
// rotation but stay open, and rejoin once they answer again.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB // every opened replica, closed only by Close
	healthy  []*sql.DB // read rotation, a subset of replicas
	current  uint32
	mu       sync.RWMutex
	config   ConnectionConfig
	logger   *observability.Logger

	stopHealth context.CancelFunc
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = time.Hour
	}
	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 10 * time.Minute
	}
	return c
}

// NewConnectionManager connects to the primary and every reachable replica.
// An unreachable replica is logged and skipped; an unreachable primary is an error.
func NewConnectionManager(ctx context.Context, config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	config = config.withDefaults()
	cm := &ConnectionManager{config: config, logger: logger}

	primary, err := cm.open(ctx, config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		replica, err := cm.open(ctx, replicaURL, replicaPoolSize(config.MaxConns))
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}
	cm.healthy = append([]*sql.DB(nil), cm.replicas...)

	logger.WithField("replicas", len(cm.replicas)).Info("Postgres connection manager initialized")
	return cm, nil
}

// NewConnectionManagerFromDB wraps already opened handles
func NewConnectionManagerFromDB(primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{
		primary:  primary,
		replicas: replicas,
		healthy:  append([]*sql.DB(nil), replicas...),
		logger:   observability.NopLogger(),
	}
}

func (cm *ConnectionManager) open(ctx context.Context, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cm.config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

func replicaPoolSize(maxConns int) int {
	if n := maxConns / 2; n >= 2 {
		return n
	}
	return 2
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.healthy) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.healthy[int(index%uint32(len(cm.healthy)))]
}

// ReplicaCount returns the number of configured replicas, healthy or not
func (cm *ConnectionManager) ReplicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.replicas)
}

// HealthyReplicaCount returns the number of replicas in the read rotation
func (cm *ConnectionManager) HealthyReplicaCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.healthy)
}

// PingContext checks the primary. Replica failures only matter when all of them are down.
func (cm *ConnectionManager) PingContext(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// CheckReplicas pings every replica and rebuilds the read rotation from the
// ones that answered. Pings run without holding the lock, and no handle is
// closed, so reads already using a replica are unaffected. It returns the
// number of replicas left out of the rotation.
func (cm *ConnectionManager) CheckReplicas(ctx context.Context) int {
	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	healthy := make([]*sql.DB, 0, len(replicas))
	for _, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			continue
		}
		healthy = append(healthy, replica)
	}

	cm.mu.Lock()
	// Close may have run while pinging.
	if cm.replicas != nil {
		cm.healthy = healthy
	}
	cm.mu.Unlock()
	return len(replicas) - len(healthy)
}

// StartHealthCheckRoutine runs CheckReplicas every interval until ctx is done
// or the manager is closed
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	cm.mu.Lock()
	if cm.stopHealth != nil {
		cm.stopHealth()
	}
	cm.stopHealth = cancel
	cm.mu.Unlock()

	go func() {
		defer observability.RecoverPanic(cm.logger, "replica health check")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				unhealthy := cm.CheckReplicas(checkCtx)
				cancel()
				if unhealthy > 0 {
					cm.logger.WithField("unhealthy", unhealthy).Warn("Replicas out of read rotation")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if cm.stopHealth != nil {
		cm.stopHealth()
		cm.stopHealth = nil
	}
	cm.mu.Unlock()

	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.healthy = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
