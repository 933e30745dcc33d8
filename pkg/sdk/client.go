package assetsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db/redis"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/bleveindex"
	indexrepo "github.com/fanhaiyang93/data-asset-platform-sub002/internal/repository/index"
	healthuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/health"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
	suggestuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/suggest"
)

// Source is the system of record the sync queue reads from.
type Source interface {
	// Fetch returns the current records for ids. Missing ids are absent from the map.
	Fetch(ctx context.Context, ids []string) (map[string]Document, error)
	// ListIDs pages through record ids in ascending order after afterID.
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// indexEngine is what the client needs from an index backend.
type indexEngine interface {
	searchuc.Backend
	suggestuc.CandidateSource
	indexsync.IndexWriter
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (engine.Stats, error)
}

var (
	_ indexEngine = (*bleveindex.Index)(nil)
	_ indexEngine = (*indexrepo.Repo)(nil)
)

// Client is an embedded asset search engine.
type Client struct {
	engine  indexEngine
	closeFn func()
	search  *searchuc.Service
	suggest *suggestuc.Service
	sync    *indexsync.Service
	health  *healthuc.Service
	obs     *observer
}

// New creates a client. With no options the index lives in memory.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o.apply(&cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	logger := cfg.zapLogger
	if logger == nil {
		logger = zap.NewNop()
	}

	eng, closeFn, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		engine:  eng,
		closeFn: closeFn,
		obs:     obs,
		search: searchuc.New(eng, nil, nil, searchuc.Config{
			SearchTimeout: cfg.searchTimeout,
			LiveTimeout:   cfg.liveTimeout,
		}, logger.Named("search")),
		suggest: suggestuc.New(eng, nil, nil, suggestuc.Config{EngineTimeout: cfg.liveTimeout}, logger.Named("suggest")),
		health:  healthuc.New(eng, nil, nil, nil),
	}
	if cfg.source != nil {
		c.sync = indexsync.New(cfg.source, eng, nil, nil, indexsync.Config{
			WritesPerSecond: cfg.syncRate,
		}, logger.Named("sync"))
	}
	if cfg.logger != nil {
		cfg.logger.Info("assetsearch client ready", slog.String("engine", engineName(cfg.engine)))
	}
	return c, nil
}

func openEngine(ctx context.Context, cfg clientConfig) (indexEngine, func(), error) {
	switch cfg.engine {
	case engineRedis:
		store, err := redis.NewStore(redis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, nil, fmt.Errorf("assetsearch: %w", err)
		}
		if err := store.WaitForReady(ctx, cfg.readyWait); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("assetsearch: %w", err)
		}
		repo := indexrepo.New(store)
		if _, err := repo.EnsureIndex(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("assetsearch: ensure index: %w", err)
		}
		return repo, store.Close, nil
	case engineDisk:
		idx, err := bleveindex.Open(cfg.path)
		if err != nil {
			return nil, nil, fmt.Errorf("assetsearch: open index: %w", err)
		}
		return idx, func() { _ = idx.Close() }, nil
	default:
		idx, err := bleveindex.NewMemOnly()
		if err != nil {
			return nil, nil, fmt.Errorf("assetsearch: create index: %w", err)
		}
		return idx, func() { _ = idx.Close() }, nil
	}
}

func engineName(k engineKind) string {
	switch k {
	case engineRedis:
		return "redis"
	case engineDisk:
		return "bleve-disk"
	}
	return "bleve-memory"
}

// Close releases the index engine. Stop RunSync before closing.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Ping checks that the index engine answers.
func (c *Client) Ping(ctx context.Context) (err error) {
	defer c.obs.observe("ping", time.Now(), &err)
	return c.engine.Ping(ctx)
}

// Upsert indexes docs directly, bypassing the sync queue.
func (c *Client) Upsert(ctx context.Context, docs ...Document) (err error) {
	defer c.obs.observe("upsert", time.Now(), &err)
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document id is required", ErrValidation)
		}
		if err := c.engine.Upsert(ctx, d.WithSearchText()); err != nil {
			return fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return nil
}

// Delete removes documents from the index. Unknown ids are ignored.
func (c *Client) Delete(ctx context.Context, ids ...string) (err error) {
	defer c.obs.observe("delete", time.Now(), &err)
	for _, id := range ids {
		if err := c.engine.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return nil
}

// Stats returns the engine's document count and indexing progress.
func (c *Client) Stats(ctx context.Context) (_ IndexStats, err error) {
	defer c.obs.observe("stats", time.Now(), &err)
	return c.engine.Stats(ctx)
}

// HealthStatus is the aggregated component health.
type HealthStatus struct {
	Status string
	Checks map[string]string
}

// Health checks the engine.
func (c *Client) Health(ctx context.Context) HealthStatus {
	r := c.health.Check(ctx)
	out := HealthStatus{Status: string(r.Status), Checks: make(map[string]string, len(r.Checks))}
	for k, v := range r.Checks {
		out.Checks[k] = string(v)
	}
	return out
}
