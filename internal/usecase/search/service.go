// Package search executes queries: cache first, then the index engine under a
// deadline, then the relational fallback under its own deadline.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// Query modes, used as metric labels.
const (
	ModeSearch      = "search"
	ModeLive        = "live"
	ModeIntelligent = "intelligent"
)

// Config holds backend deadlines and re-ranking parameters.
type Config struct {
	LiveTimeout     time.Duration
	SearchTimeout   time.Duration
	FallbackTimeout time.Duration
	// CandidateWindow is how many leading results IntelligentSearch re-ranks.
	CandidateWindow int
	HalfLife        time.Duration
	PopularityCap   int64
}

// DefaultConfig returns the built-in deadlines.
func DefaultConfig() Config {
	return Config{
		LiveTimeout:     200 * time.Millisecond,
		SearchTimeout:   1500 * time.Millisecond,
		FallbackTimeout: 2 * time.Second,
		CandidateWindow: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LiveTimeout <= 0 {
		c.LiveTimeout = d.LiveTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = d.SearchTimeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = d.FallbackTimeout
	}
	if c.CandidateWindow <= 0 {
		c.CandidateWindow = d.CandidateWindow
	}
	if c.CandidateWindow > request.MaxPageSize {
		c.CandidateWindow = request.MaxPageSize
	}
	return c
}

// Option configures a Service.
type Option func(*Service)

// WithRewriter enables query rewriting for IntelligentSearch.
func WithRewriter(r Rewriter) Option {
	return func(s *Service) { s.rewriter = r }
}

// WithWeightResolver enables experiment and per-user weights for IntelligentSearch.
func WithWeightResolver(w WeightResolver) Option {
	return func(s *Service) { s.weights = w }
}

// WithClock replaces the time source used for recency.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the read path.
type Service struct {
	engine   Backend
	fallback Backend
	cache    Cache
	rewriter Rewriter
	weights  WeightResolver
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	flight singleflight.Group
}

// New creates a search service. fallback and cache may be nil.
func New(engine, fallback Backend, cache Cache, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		fallback: fallback,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search answers a paginated query.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	return s.execute(ctx, ModeSearch, tier.Search, s.cfg.SearchTimeout, req)
}

// LiveSearch answers an interactive query with the short deadline and cache tier.
func (s *Service) LiveSearch(ctx context.Context, req *request.Request) (result.Page, error) {
	return s.execute(ctx, ModeLive, tier.Live, s.cfg.LiveTimeout, req)
}

func (s *Service) execute(
	ctx context.Context, mode string, t tier.Tier, timeout time.Duration, req *request.Request,
) (result.Page, error) {
	key := req.CacheKey()

	var page result.Page
	if s.cache != nil && s.cache.Get(ctx, t, key, &page) {
		page.Cached = true
		metrics.SearchRequestsTotal.WithLabelValues(mode, "cache").Inc()
		return page, nil
	}

	v, err, shared := s.flight.Do(string(t)+":"+key, func() (any, error) {
		return s.fetch(ctx, t, key, timeout, req)
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(mode, "unavailable").Inc()
		return result.Page{}, err
	}
	page = v.(result.Page)
	if shared {
		// Callers must not alias another caller's items.
		page = page.Slice(0, len(page.Items))
	}
	metrics.SearchRequestsTotal.WithLabelValues(mode, string(page.Source)).Inc()
	return page, nil
}

// fetch runs the engine, then the fallback. Only engine pages are cached so
// that recovery from an outage is visible immediately.
func (s *Service) fetch(
	ctx context.Context, t tier.Tier, key string, timeout time.Duration, req *request.Request,
) (result.Page, error) {
	page, engineErr := s.call(ctx, "engine", timeout, s.engine, req)
	if engineErr == nil {
		if s.cache != nil {
			s.cache.Set(ctx, t, key, page)
		}
		return page, nil
	}
	if ctx.Err() != nil {
		return result.Page{}, ctx.Err()
	}
	if s.fallback == nil {
		return result.Page{}, fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, engineErr)
	}

	s.logger.Warn("Engine search failed, using fallback",
		zap.String("query", req.Query()), zap.Error(engineErr))
	page, fallbackErr := s.call(ctx, "fallback", s.cfg.FallbackTimeout, s.fallback, req)
	if fallbackErr == nil {
		return page, nil
	}
	s.logger.Error("Search unavailable",
		zap.String("query", req.Query()),
		zap.NamedError("engine", engineErr),
		zap.NamedError("fallback", fallbackErr),
	)
	return result.Page{}, fmt.Errorf("%w: engine: %w; fallback: %w",
		domain.ErrServiceUnavailable, engineErr, fallbackErr)
}

type outcome struct {
	page result.Page
	err  error
}

// call races one backend query against timeout. On expiry the pending call
// is abandoned: its context is cancelled and its result is dropped.
func (s *Service) call(
	ctx context.Context, backend string, timeout time.Duration, b Backend, req *request.Request,
) (result.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		p, err := b.Search(ctx, req)
		done <- outcome{p, err}
	}()

	select {
	case o := <-done:
		label := "ok"
		if o.err != nil {
			label = "error"
		}
		metrics.SearchBackendDuration.WithLabelValues(backend, label).Observe(time.Since(start).Seconds())
		if o.err != nil && !errors.Is(o.err, domain.ErrBackendUnavailable) {
			o.err = domain.NewTransient(backend+" search", o.err)
		}
		return o.page, o.err
	case <-ctx.Done():
		metrics.SearchBackendDuration.WithLabelValues(backend, "timeout").Observe(time.Since(start).Seconds())
		return result.Page{}, domain.NewTransient(backend+" search", ctx.Err())
	}
}
