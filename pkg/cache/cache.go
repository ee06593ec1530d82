// Package cache memoizes assembled analytics reports in a two-level cache: an
// in-process expirable LRU in front of an optional shared Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/puzzlelog/pkg/analytics"
	"github.com/platinummonkey/puzzlelog/pkg/observability"
)

const (
	layerL1 = "l1"
	layerL2 = "l2"

	// DefaultKeyPrefix namespaces report keys in a shared Redis
	DefaultKeyPrefix = "puzzlelog:report:"

	// generationKey, under the prefix, holds the shared invalidation counter
	generationKey = "generation"

	// unknownGeneration marks a shared counter that could not be read
	unknownGeneration = math.MaxUint64
)

// errStaleGeneration aborts a Redis write for a report built before an invalidation
var errStaleGeneration = errors.New("report cache generation changed")

// Config configures the report cache
type Config struct {
	// L1Size bounds the in-process cache. Zero disables L1.
	L1Size int `yaml:"l1_size"`
	// TTL applies to both layers
	TTL time.Duration `yaml:"ttl"`
	// KeyPrefix namespaces Redis keys
	KeyPrefix string `yaml:"key_prefix"`
}

// DefaultConfig returns sensible cache defaults
func DefaultConfig() Config {
	return Config{
		L1Size:    128,
		TTL:       30 * time.Second,
		KeyPrefix: DefaultKeyPrefix,
	}
}

// Option configures a ReportCache
type Option func(*ReportCache)

// WithRedis enables the shared L2 layer
func WithRedis(client *redis.Client) Option {
	return func(c *ReportCache) { c.redis = client }
}

// WithLogger sets the cache logger
func WithLogger(logger *observability.Logger) Option {
	return func(c *ReportCache) { c.logger = logger }
}

// WithMetrics enables hit/miss counters
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *ReportCache) { c.metrics = metrics }
}

// ReportCache implements analytics.ReportCache and ingest.CacheInvalidator.
// Redis failures degrade to misses; they never fail a report request.
// Cached reports are shared and must be treated as read-only.
//
// Invalidate bumps a generation counter before purging, and Set refuses
// reports built against an older generation, so a report computed from a
// snapshot taken before a write is never stored after that write's
// invalidation.
type ReportCache struct {
	mu  sync.Mutex
	gen uint64

	l1      *expirable.LRU[string, *analytics.Report]
	redis   *redis.Client
	prefix  string
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New creates a report cache
func New(cfg Config, opts ...Option) *ReportCache {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	c := &ReportCache{
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: observability.NopLogger(),
	}
	if cfg.L1Size > 0 {
		c.l1 = expirable.NewLRU[string, *analytics.Report](cfg.L1Size, nil, cfg.TTL)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements analytics.ReportCache
func (c *ReportCache) Get(ctx context.Context, key string) (*analytics.Report, bool) {
	if c.l1 != nil {
		if report, ok := c.l1.Get(key); ok {
			c.metrics.RecordCacheHit(layerL1)
			return report, true
		}
		c.metrics.RecordCacheMiss(layerL1)
	}

	if c.redis == nil {
		return nil, false
	}

	report, err := c.getRemote(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Report cache read failed")
	}
	if report == nil {
		c.metrics.RecordCacheMiss(layerL2)
		return nil, false
	}

	c.metrics.RecordCacheHit(layerL2)
	if c.l1 != nil {
		c.l1.Add(key, report)
	}
	return report, true
}

func (c *ReportCache) getRemote(ctx context.Context, key string) (*analytics.Report, error) {
	redisKey := c.prefix + key

	data, err := c.redis.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var report analytics.Report
	if err := json.Unmarshal(data, &report); err != nil {
		// Drop corrupt entries so the next request rebuilds them.
		c.redis.Del(ctx, redisKey)
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// Generation implements analytics.ReportCache
func (c *ReportCache) Generation(ctx context.Context) analytics.Generation {
	c.mu.Lock()
	gen := analytics.Generation{Local: c.gen}
	c.mu.Unlock()

	if c.redis == nil {
		return gen
	}
	shared, err := c.redis.Get(ctx, c.prefix+generationKey).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		gen.Shared = 0
	case err != nil:
		c.logger.WithError(err).Warn("Report cache generation read failed")
		gen.Shared = unknownGeneration
	default:
		gen.Shared = shared
	}
	return gen
}

// Set implements analytics.ReportCache. The report is dropped when the cache
// was invalidated after gen was read.
func (c *ReportCache) Set(ctx context.Context, key string, report *analytics.Report, gen analytics.Generation) {
	if report == nil {
		return
	}

	if c.redis != nil && gen.Shared != unknownGeneration {
		err := c.setRemote(ctx, key, report, gen.Shared)
		switch {
		case errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr):
			c.logger.WithField("key", key).Debug("Dropping report built before an invalidation")
			return
		case err != nil:
			c.logger.WithError(err).WithField("key", key).Warn("Report cache write failed")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen.Local {
		c.logger.WithField("key", key).Debug("Dropping report built before an invalidation")
		return
	}
	if c.l1 != nil {
		c.l1.Add(key, report)
	}
}

// setRemote writes report only while the shared generation still equals gen
func (c *ReportCache) setRemote(ctx context.Context, key string, report *analytics.Report, gen uint64) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	genKey := c.prefix + generationKey
	return c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.prefix+key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// Invalidate drops every cached report and advances the generation so that
// reports still being built are not stored. Other processes keep their own
// L1 entries until the TTL expires.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	var errs []error
	genKey := c.prefix + generationKey

	// The shared counter moves first: a report written to Redis before this
	// point is deleted by the scan below, and one written after is refused.
	if c.redis != nil {
		if err := c.redis.Incr(ctx, genKey).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to advance generation: %w", err))
		}
	}

	c.mu.Lock()
	c.gen++
	if c.l1 != nil {
		c.l1.Purge()
	}
	c.mu.Unlock()

	if c.redis == nil {
		return nil
	}

	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if iter.Val() == genKey {
			continue
		}
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete key %s: %w", iter.Val(), err))
			return errors.Join(errs...)
		}
	}
	if err := iter.Err(); err != nil {
		errs = append(errs, fmt.Errorf("scan failed for prefix %s: %w", c.prefix, err))
	}
	return errors.Join(errs...)
}

// Len returns the number of L1 entries
func (c *ReportCache) Len() int {
	if c.l1 == nil {
		return 0
	}
	return c.l1.Len()
}
