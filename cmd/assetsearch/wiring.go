package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/config"
	dbRedis "github.com/fanhaiyang93/data-asset-platform-sub002/internal/db/redis"
	logpkg "github.com/fanhaiyang93/data-asset-platform-sub002/internal/logger"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/archive"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/bleveindex"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/budget"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/cache"
	indexrepo "github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/index"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/rewritecache"
	openaiRw "github.com/fanhaiyang93/data-asset-platform-sub002/internal/transport/openai"
	adminuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/admin"
	healthuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/health"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
	rewriteuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/rewrite"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
	suggestuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/suggest"
)

// indexEngine is everything the service needs from an index backend.
type indexEngine interface {
	searchuc.Backend
	suggestuc.CandidateSource
	indexsync.IndexWriter
	adminuc.Engine
	healthuc.Pinger
}

var (
	_ indexEngine = (*indexrepo.Repo)(nil)
	_ indexEngine = (*bleveindex.Index)(nil)
)

func openEngine(cfg config.EngineConfig, store *dbRedis.Store) (indexEngine, func(), error) {
	switch cfg.Backend {
	case config.EngineBleve:
		var (
			idx *bleveindex.Index
			err error
		)
		if cfg.BlevePath != "" {
			idx, err = bleveindex.Open(cfg.BlevePath)
		} else {
			idx, err = bleveindex.NewMemOnly()
		}
		if err != nil {
			return nil, nil, fmt.Errorf("open bleve index: %w", err)
		}
		return idx, func() { _ = idx.Close() }, nil
	default:
		return indexrepo.New(store), func() {}, nil
	}
}

// cacheDeps returns the cache under each consumer interface. A nil cache
// yields nil interfaces, not typed nil pointers, so consumers skip caching.
func cacheDeps(c *cache.Cache) (searchuc.Cache, suggestuc.Cache, indexsync.CacheInvalidator) {
	if c == nil {
		return nil, nil, nil
	}
	return c, c, c
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (adminuc.Archive, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := archive.NewClient(archive.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	store := archive.NewStore(client, cfg.Bucket, cfg.Prefix)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("Dead-letter archive enabled", zap.String("bucket", cfg.Bucket))
	return store, nil
}

// openRewriter stacks the rewrite cache over the budget guard over the
// chat completion client. The health check talks to the provider directly.
func openRewriter(
	ctx context.Context, cfg config.RewriterConfig, store *dbRedis.Store, logger *zap.Logger,
) (searchuc.Rewriter, healthuc.Checker, *rewriteuc.Budget) {
	rwLogger := logpkg.Component(logger, "rewriter")
	client := openaiRw.NewRewriter(&openaiRw.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		User:     cfg.User,
		Provider: cfg.Provider,
		Logger:   rwLogger,
	})

	var (
		limiter rewriteuc.Limiter
		tracker *rewriteuc.Budget
	)
	if cfg.DailyTokenLimit > 0 || cfg.MonthlyTokenLimit > 0 {
		tracker = rewriteuc.NewBudget(cfg.Provider, cfg.DailyTokenLimit, cfg.MonthlyTokenLimit,
			rewriteuc.BudgetAction(cfg.BudgetAction), rwLogger).
			WithStore(ctx, budget.New(store, 48*time.Hour, 62*24*time.Hour))
		limiter = tracker
	}
	guard := rewriteuc.NewGuard(client, cfg.Provider, cfg.Model, limiter, rwLogger)
	cached := rewritecache.New(guard, store, config.Seconds(cfg.CacheTTLSec), metrics.RewriteCacheTotal, rwLogger)

	logger.Info("Query rewriter enabled",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int64("daily_token_limit", cfg.DailyTokenLimit),
		zap.Int64("monthly_token_limit", cfg.MonthlyTokenLimit),
	)
	return cached, client, tracker
}
