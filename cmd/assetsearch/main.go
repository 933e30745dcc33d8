package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/config"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db/postgres"
	dbRedis "github.com/fanhaiyang93/data-asset-platform-sub002/internal/db/redis"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	logpkg "github.com/fanhaiyang93/data-asset-platform-sub002/internal/logger"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/cache"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/catalog"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/deadletter"
	exprepo "github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/experiment"
	chiTransport "github.com/fanhaiyang93/data-asset-platform-sub002/internal/transport/chi"
	adminuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/admin"
	expuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
	healthuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/health"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
	suggestuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/suggest"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting asset search service",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("engine", cfg.Engine.Backend),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Register()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("create redis store: %w", err)
	}
	defer store.Close()
	if err := store.WaitForReady(ctx, config.Seconds(cfg.Redis.ReadinessTimeout)); err != nil {
		return fmt.Errorf("redis not ready: %w", err)
	}
	logger.Info("Connected to redis")

	sqlDB, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: config.Seconds(cfg.Postgres.ConnMaxLifetimeSec),
	})
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if cfg.Postgres.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, sqlDB); err != nil {
			return err
		}
	}
	logger.Info("Connected to postgres")
	catalogRepo := catalog.New(sqlDB)

	eng, closeEngine, err := openEngine(cfg.Engine, store)
	if err != nil {
		return err
	}
	defer closeEngine()

	var resultCache *cache.Cache
	if !cfg.Cache.Disabled {
		opts := []cache.Option{
			cache.WithCompressThreshold(cfg.Cache.CompressThresholdBytes),
			cache.WithMetrics(metrics.CacheTotal),
		}
		for _, t := range tier.All {
			opts = append(opts, cache.WithTTL(t, cfg.Cache.TTL(string(t))))
		}
		resultCache = cache.New(store, logpkg.Component(logger, "cache"), opts...)
	}
	searchCache, suggestCache, syncCache := cacheDeps(resultCache)

	queue := indexsync.New(catalogRepo, eng, syncCache, deadletter.New(store), indexsync.Config{
		BatchSize:        cfg.Sync.BatchSize,
		MaxAttempts:      cfg.Sync.MaxAttempts,
		BackoffBase:      cfg.Sync.BackoffBase,
		BackoffUnit:      config.Millis(cfg.Sync.BackoffUnitMs),
		MaxBackoff:       config.Seconds(cfg.Sync.MaxBackoffSec),
		Interval:         config.Seconds(cfg.Sync.IntervalSec),
		WritesPerSecond:  cfg.Sync.WritesPerSecond,
		FullSyncPageSize: cfg.Sync.FullSyncPageSize,
	}, logpkg.Component(logger, "indexsync"))

	experiments := expuc.New(exprepo.New(store), logpkg.Component(logger, "experiment"))

	searchOpts := []searchuc.Option{searchuc.WithWeightResolver(experiments)}
	var (
		rewriterCheck healthuc.Checker
		rewriteUsage  chiTransport.RewriteUsage
	)
	if cfg.Rewriter.Enabled() {
		rw, check, tracker := openRewriter(ctx, cfg.Rewriter, store, logger)
		searchOpts = append(searchOpts, searchuc.WithRewriter(rw))
		rewriterCheck = check
		if tracker != nil {
			rewriteUsage = tracker
		}
	}

	searchSvc := searchuc.New(eng, catalogRepo, searchCache, searchuc.Config{
		LiveTimeout:     config.Millis(cfg.Search.LiveTimeoutMs),
		SearchTimeout:   config.Millis(cfg.Search.SearchTimeoutMs),
		FallbackTimeout: config.Millis(cfg.Search.FallbackTimeoutMs),
		CandidateWindow: cfg.Search.CandidateWindow,
		HalfLife:        time.Duration(cfg.Search.RecencyHalfLifeHours) * time.Hour,
		PopularityCap:   cfg.Search.PopularityCap,
	}, logpkg.Component(logger, "search"), searchOpts...)

	suggestSvc := suggestuc.New(eng, catalogRepo, suggestCache, suggestuc.Config{
		EngineTimeout:   config.Millis(cfg.Suggest.EngineTimeoutMs),
		FallbackTimeout: config.Millis(cfg.Suggest.FallbackTimeoutMs),
	}, logpkg.Component(logger, "suggest"))

	archive, err := openArchive(ctx, cfg.Archive, logger)
	if err != nil {
		return err
	}
	adminSvc := adminuc.New(eng, queue, syncCache, archive, logpkg.Component(logger, "admin"))

	if res, err := adminSvc.InitializeIndex(ctx, false); err != nil {
		logger.Warn("Index initialization failed, reads will use the fallback", zap.Error(err))
	} else if res.Resync == nil && !cfg.Engine.Persistent() {
		if _, err := adminSvc.RefreshIndex(); err != nil {
			return err
		}
	}

	healthSvc := healthuc.New(eng, catalogRepo, store, rewriterCheck)

	server := chiTransport.NewServer(chiTransport.Services{
		Search:       searchSvc,
		Suggest:      suggestSvc,
		Sync:         queue,
		Experiments:  experiments,
		Admin:        adminSvc,
		Health:       healthSvc,
		RewriteUsage: rewriteUsage,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  config.Seconds(cfg.HTTP.ReadTimeoutSec),
		WriteTimeout: config.Seconds(cfg.HTTP.WriteTimeoutSec),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.HTTP.ShutdownSec))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
