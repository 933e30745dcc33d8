// Package rewritecache memoizes query rewrites in the key-value store.
package rewritecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
)

// KeyPrefix namespaces cached rewrites.
const KeyPrefix = "assetsearch:rewrite:cache:"

// Rewriter is the wrapped rewriter.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached serves repeated queries without calling the model again. Store
// failures degrade to an uncached call.
type Cached struct {
	inner  Rewriter
	store  store
	ttl    time.Duration
	total  *prometheus.CounterVec
	logger *zap.Logger
}

// New creates a caching decorator. total is a counter vec labelled by
// result ("hit"/"miss") and may be nil.
func New(inner Rewriter, s store, ttl time.Duration, total *prometheus.CounterVec, logger *zap.Logger) *Cached {
	return &Cached{inner: inner, store: s, ttl: ttl, total: total, logger: logger}
}

// Rewrite returns the cached rewrite of query or asks the inner rewriter.
func (c *Cached) Rewrite(ctx context.Context, query string) (string, error) {
	key := cacheKey(query)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil && len(data) > 0:
		c.inc("hit")
		return string(data), nil
	case err != nil && !errors.Is(err, db.ErrKeyNotFound):
		c.logger.Warn("Failed to read cached rewrite", zap.String("key", key), zap.Error(err))
	}
	c.inc("miss")

	out, err := c.inner.Rewrite(ctx, query)
	if err != nil {
		return "", fmt.Errorf("rewrite: %w", err)
	}
	if out != "" {
		if err := c.store.SetWithTTL(ctx, key, []byte(out), c.ttl); err != nil {
			c.logger.Warn("Failed to cache rewrite", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

func (c *Cached) inc(result string) {
	if c.total != nil {
		c.total.WithLabelValues(result).Inc()
	}
}

// cacheKey folds case and surrounding whitespace so trivially different inputs share an entry.
func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return KeyPrefix + hex.EncodeToString(sum[:])
}
