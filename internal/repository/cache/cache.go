// Package cache stores read-path results in Redis under freshness tiers.
// Every failure degrades to a miss; callers never see cache errors on reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
)

// KeyPrefix namespaces every cache entry.
const KeyPrefix = "assetsearch:cache:"

// DefaultCompressThreshold is the encoded size above which values are zstd-compressed.
const DefaultCompressThreshold = 4096

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Cache is a tiered result cache.
type Cache struct {
	store      store
	ttls       map[tier.Tier]time.Duration
	threshold  int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the lifetime of one tier. Non-positive values are ignored.
func WithTTL(t tier.Tier, ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttls[t] = ttl
		}
	}
}

// WithCompressThreshold sets the compression threshold in bytes; 0 disables compression.
func WithCompressThreshold(n int) Option {
	return func(c *Cache) { c.threshold = n }
}

// WithMetrics records hits and misses in a counter vec labelled by tier and result.
func WithMetrics(cacheTotal *prometheus.CounterVec) Option {
	return func(c *Cache) { c.cacheTotal = cacheTotal }
}

// New creates a cache over s.
func New(s store, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     s,
		ttls:      make(map[tier.Tier]time.Duration, len(tier.All)),
		threshold: DefaultCompressThreshold,
		logger:    logger,
	}
	for _, t := range tier.All {
		c.ttls[t] = t.DefaultTTL()
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key returns the storage key of an entry.
func Key(t tier.Tier, key string) string {
	return KeyPrefix + string(t) + ":" + key
}

// TTL returns the configured lifetime of t.
func (c *Cache) TTL(t tier.Tier) time.Duration { return c.ttls[t] }

// Get decodes the entry at (t, key) into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, t tier.Tier, key string, dst any) bool {
	k := Key(t, key)
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Cache read failed", zap.String("key", k), zap.Error(err))
		}
		c.inc(t, "miss")
		return false
	}
	if err := decode(data, dst); err != nil {
		c.logger.Warn("Cache entry unreadable", zap.String("key", k), zap.Error(err))
		c.inc(t, "miss")
		return false
	}
	c.inc(t, "hit")
	return true
}

// Set stores v at (t, key) with the tier's lifetime. Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, t tier.Tier, key string, v any) {
	k := Key(t, key)
	data, err := encode(v, c.threshold)
	if err != nil {
		c.logger.Warn("Cache encode failed", zap.String("key", k), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, k, data, c.ttls[t]); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", k), zap.Error(err))
	}
}

// Invalidate removes every entry of the given tiers. It returns the number of
// keys deleted and the first error; remaining tiers are still attempted.
func (c *Cache) Invalidate(ctx context.Context, tiers ...tier.Tier) (int, error) {
	var (
		deleted  int
		firstErr error
	)
	for _, t := range tiers {
		keys, err := c.store.Scan(ctx, KeyPrefix+string(t)+":*")
		if err == nil && len(keys) > 0 {
			err = c.store.Del(ctx, keys...)
			if err == nil {
				deleted += len(keys)
			}
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalidate %s tier: %w", t, err)
		}
	}
	return deleted, firstErr
}

func (c *Cache) inc(t tier.Tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(string(t), result).Inc()
	}
}
