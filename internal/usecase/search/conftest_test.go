package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
)

// --- Mocks ---

type mockBackend struct {
	searchFn func(ctx context.Context, req *request.Request) (result.Page, error)
	calls    atomic.Int32
}

func (m *mockBackend) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	m.calls.Add(1)
	return m.searchFn(ctx, req)
}

func returning(page result.Page, err error) *mockBackend {
	return &mockBackend{searchFn: func(context.Context, *request.Request) (result.Page, error) {
		return page, err
	}}
}

// hanging blocks for d regardless of ctx, like a wedged engine client.
func hanging(d time.Duration) *mockBackend {
	return &mockBackend{searchFn: func(context.Context, *request.Request) (result.Page, error) {
		time.Sleep(d)
		return result.NewPage(nil, 0, result.SourceEngine), nil
	}}
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]result.Page
	sets    []tier.Tier
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]result.Page{}}
}

func (c *mockCache) Get(_ context.Context, t tier.Tier, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[string(t)+":"+key]
	if !ok {
		return false
	}
	*dst.(*result.Page) = p
	return true
}

func (c *mockCache) Set(_ context.Context, t tier.Tier, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(t)+":"+key] = v.(result.Page)
	c.sets = append(c.sets, t)
}

type mockResolver struct {
	res experiment.Resolution
	err error
}

func (m *mockResolver) ResolveWeights(context.Context, string, string, *ranking.Weights) (experiment.Resolution, error) {
	return m.res, m.err
}

type mockRewriter struct {
	out string
	err error
}

func (m *mockRewriter) Rewrite(context.Context, string) (string, error) { return m.out, m.err }

// --- Helpers ---

func newReq(t *testing.T, q string, page, size int, order sortopt.Sort) *request.Request {
	t.Helper()
	r, err := request.New(q, filter.Expression{}, page, size, order)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &r
}

func enginePage(docs ...asset.Document) result.Page {
	items := make([]result.Item, len(docs))
	for i, d := range docs {
		items[i] = result.Item{Document: d, Score: float64(len(docs) - i), Position: i}
	}
	return result.NewPage(items, len(docs), result.SourceEngine)
}

func fallbackPage(docs ...asset.Document) result.Page {
	items := make([]result.Item, len(docs))
	for i, d := range docs {
		items[i] = result.Item{Document: d, Score: 0.5, Position: i}
	}
	return result.NewPage(items, len(docs), result.SourceFallback)
}

func newTestService(engine, fallback Backend, cache Cache, cfg Config, opts ...Option) *Service {
	return New(engine, fallback, cache, cfg, zap.NewNop(), opts...)
}
