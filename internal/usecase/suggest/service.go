// Package suggest serves type-ahead completions over asset names, category
// names and tags.
package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// Size limits.
const (
	DefaultSize     = 10
	MaxSize         = 50
	MaxPrefixLength = 100
	// candidatesPerResult over-fetches so that ranking has material to drop.
	candidatesPerResult = 5
)

// Config holds backend deadlines.
type Config struct {
	EngineTimeout   time.Duration
	FallbackTimeout time.Duration
}

// Service ranks candidates from the engine, or from the fallback when the
// engine fails.
type Service struct {
	engine   CandidateSource
	fallback CandidateSource
	cache    Cache
	cfg      Config
	logger   *zap.Logger
}

// New creates a suggestion service. fallback and cache may be nil.
func New(engine, fallback CandidateSource, cache Cache, cfg Config, logger *zap.Logger) *Service {
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = 200 * time.Millisecond
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 2 * time.Second
	}
	return &Service{engine: engine, fallback: fallback, cache: cache, cfg: cfg, logger: logger}
}

// Suggest returns up to size completions for prefix, best first.
func (s *Service) Suggest(ctx context.Context, prefix string, size int) ([]suggestion.Suggestion, error) {
	prefix = strings.TrimSpace(prefix)
	switch {
	case prefix == "":
		return nil, domain.NewValidation("prefix", "is required")
	case len(prefix) > MaxPrefixLength:
		return nil, domain.NewValidation("prefix", "too long (max "+strconv.Itoa(MaxPrefixLength)+" chars)")
	case size < 0:
		return nil, domain.NewValidation("size", "must be positive")
	case size == 0:
		size = DefaultSize
	case size > MaxSize:
		size = MaxSize
	}

	cands, err := s.candidates(ctx, prefix, size*candidatesPerResult)
	if err != nil {
		return nil, err
	}
	return suggestion.Rank(prefix, cands, size), nil
}

func (s *Service) candidates(ctx context.Context, prefix string, limit int) ([]suggestion.Candidate, error) {
	key := cacheKey(prefix, limit)

	var cands []suggestion.Candidate
	if s.cached(ctx, tier.Suggestion, key, &cands) {
		return cands, nil
	}
	cands, engineErr := call(ctx, s.cfg.EngineTimeout, s.engine, prefix, limit)
	if engineErr == nil {
		s.store(ctx, tier.Suggestion, key, cands)
		return cands, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s.fallback == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, engineErr)
	}

	s.logger.Warn("Engine suggest failed, using fallback", zap.String("prefix", prefix), zap.Error(engineErr))
	if s.cached(ctx, tier.Popular, key, &cands) {
		return cands, nil
	}
	cands, fallbackErr := call(ctx, s.cfg.FallbackTimeout, s.fallback, prefix, limit)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: engine: %w; fallback: %w", domain.ErrServiceUnavailable, engineErr, fallbackErr)
	}
	// The grouped aggregation is the expensive query, so it gets the longest tier.
	s.store(ctx, tier.Popular, key, cands)
	return cands, nil
}

func (s *Service) cached(ctx context.Context, t tier.Tier, key string, dst *[]suggestion.Candidate) bool {
	return s.cache != nil && s.cache.Get(ctx, t, key, dst)
}

func (s *Service) store(ctx context.Context, t tier.Tier, key string, cands []suggestion.Candidate) {
	if s.cache != nil {
		s.cache.Set(ctx, t, key, cands)
	}
}

type answer struct {
	cands []suggestion.Candidate
	err   error
}

func call(
	ctx context.Context, timeout time.Duration, src CandidateSource, prefix string, limit int,
) ([]suggestion.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan answer, 1)
	go func() {
		c, err := src.SuggestCandidates(ctx, prefix, limit)
		done <- answer{c, err}
	}()
	select {
	case a := <-done:
		if a.err != nil && !errors.Is(a.err, domain.ErrBackendUnavailable) {
			a.err = domain.NewTransient("suggest", a.err)
		}
		outcome := "ok"
		if a.err != nil {
			outcome = "error"
		}
		metrics.SearchBackendDuration.WithLabelValues("suggest", outcome).Observe(time.Since(start).Seconds())
		return a.cands, a.err
	case <-ctx.Done():
		metrics.SearchBackendDuration.WithLabelValues("suggest", "timeout").Observe(time.Since(start).Seconds())
		return nil, domain.NewTransient("suggest", ctx.Err())
	}
}

func cacheKey(prefix string, limit int) string {
	sum := sha256.Sum256([]byte("suggest|" + strings.ToLower(prefix) + "|" + strconv.Itoa(limit)))
	return hex.EncodeToString(sum[:16])
}
