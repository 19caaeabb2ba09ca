package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/config"
	"github.com/pageinsights/pageinsights-backend/internal/metrics"
	"github.com/pageinsights/pageinsights-backend/pkg/kv"

	// Register the kv backends with the factory.
	_ "github.com/pageinsights/pageinsights-backend/pkg/kv/memory"
	_ "github.com/pageinsights/pageinsights-backend/pkg/kv/redis"
)

// ErrCacheMiss is returned by Get when the key is absent, expired, or the
// cache is degraded. It is the only error Get produces.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a read-through JSON cache over a kv.Store. A Cache whose backend
// could not be reached at startup, or whose backend is configured off, runs
// degraded: every Get misses and every Set and Invalidate is a no-op. Backend
// errors at runtime are logged and surface the same way, so callers never see
// a request fail because the cache did.
type Cache struct {
	store   kv.Store // nil when degraded
	ttl     time.Duration
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewCache builds a Cache from configuration. Backend "disabled" or an
// unreachable backend yields a degraded cache, never an error: serving stale
// nothing is better than not serving.
func NewCache(cfg config.CacheConfig, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	c := &Cache{ttl: cfg.TTL, logger: logger, metrics: m}
	if c.ttl <= 0 {
		c.ttl = 5 * time.Minute
	}

	if cfg.Backend == "disabled" {
		logger.Infow("Cache disabled by configuration")
		return c
	}

	store, err := kv.NewStoreFromConfig(kv.Config{
		Backend:  kv.Backend(cfg.Backend),
		RedisURL: cfg.RedisAddr,
		Logger:   kvLogFunc(logger),
	})
	if err != nil {
		logger.Warnw("Cache backend unavailable; running without cache", "backend", cfg.Backend, "error", err)
		return c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warnw("Cache backend not responding; running without cache", "backend", cfg.Backend, "error", err)
		_ = store.Close()
		return c
	}

	c.store = store
	return c
}

// NewCacheWithStore wraps an existing kv.Store. Used by tests and by callers
// that manage the store lifecycle themselves.
func NewCacheWithStore(store kv.Store, ttl time.Duration, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{store: store, ttl: ttl, logger: logger, metrics: m}
}

func kvLogFunc(logger *zap.SugaredLogger) kv.LogFunc {
	return func(msg string, keysAndValues ...string) {
		args := make([]interface{}, len(keysAndValues))
		for i, v := range keysAndValues {
			args[i] = v
		}
		logger.Infow(msg, args...)
	}
}

// Enabled reports whether a backend is attached.
func (c *Cache) Enabled() bool {
	return c.store != nil
}

// DefaultTTL is the entry lifetime used when Set is called with ttl <= 0.
func (c *Cache) DefaultTTL() time.Duration {
	return c.ttl
}

// Get unmarshals the cached value for key into dest. Every failure mode
// (absent key, expired entry, backend down, undecodable payload) is reported
// as ErrCacheMiss; undecodable payloads are also dropped.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.store == nil {
		return ErrCacheMiss
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warnw("Cache get failed; treating as miss", "key", key, "error", err)
		}
		c.recordMiss(ctx, key)
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warnw("Dropping undecodable cache entry", "key", key, "error", err)
		_, _ = c.store.Del(ctx, key)
		c.recordMiss(ctx, key)
		return ErrCacheMiss
	}

	c.recordHit(ctx, key)
	return nil
}

// Set stores value under key as JSON. A ttl <= 0 uses the default TTL.
// Backend failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	c.setRaw(ctx, key, data, ttl)
	return nil
}

func (c *Cache) setRaw(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warnw("Cache set failed", "key", key, "error", err)
	}
}

// Invalidate deletes every key matching the glob pattern and returns how
// many were removed. Degraded or failing backends report zero removals.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int64, error) {
	if c.store == nil {
		return 0, nil
	}

	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		c.logger.Warnw("Cache invalidation scan failed", "pattern", pattern, "error", err)
		return 0, nil
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := c.store.Del(ctx, keys...)
	if err != nil {
		c.logger.Warnw("Cache invalidation delete failed", "pattern", pattern, "error", err)
		return 0, nil
	}
	return removed, nil
}

// InvalidatePage drops every cached view the page can appear in: its own
// entry, its posts and followers, and all cached list views.
func (c *Cache) InvalidatePage(ctx context.Context, pageKey string) int64 {
	var removed int64
	for _, pattern := range pageScopePatterns(pageKey) {
		n, _ := c.Invalidate(ctx, pattern)
		removed += n
	}
	return removed
}

// WithCache populates dest from the cache, or from produce on a miss. The
// produced value is stored and dest is filled from the same serialized bytes,
// so a caller sees exactly what later cache hits will see.
func (c *Cache) WithCache(ctx context.Context, key string, ttl time.Duration, dest interface{}, produce func(ctx context.Context) (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}

	value, err := produce(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	c.setRaw(ctx, key, data, ttl)
	return json.Unmarshal(data, dest)
}

// Ping reports backend health. A degraded cache is healthy by definition;
// it is doing exactly what it is supposed to.
func (c *Cache) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Ping(ctx)
}

func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *Cache) recordHit(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
}

func (c *Cache) recordMiss(ctx context.Context, key string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, key)
	}
}
