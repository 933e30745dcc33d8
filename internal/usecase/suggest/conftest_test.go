package suggest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
)

type mockSource struct {
	cands []suggestion.Candidate
	err   error
	delay time.Duration
	calls int
	limit int
}

func (m *mockSource) SuggestCandidates(_ context.Context, _ string, limit int) ([]suggestion.Candidate, error) {
	m.calls++
	m.limit = limit
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.cands, m.err
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string][]suggestion.Candidate
	sets    []tier.Tier
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string][]suggestion.Candidate{}}
}

func (c *mockCache) Get(_ context.Context, t tier.Tier, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[string(t)+":"+key]
	if ok {
		*dst.(*[]suggestion.Candidate) = v
	}
	return ok
}

func (c *mockCache) Set(_ context.Context, t tier.Tier, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(t)+":"+key] = v.([]suggestion.Candidate)
	c.sets = append(c.sets, t)
}

func newTestService(engine, fallback CandidateSource, cache Cache) *Service {
	return New(engine, fallback, cache, Config{EngineTimeout: 50 * time.Millisecond, FallbackTimeout: 50 * time.Millisecond}, zap.NewNop())
}

func engineCandidates() []suggestion.Candidate {
	return []suggestion.Candidate{
		{Text: "Sales Report", Kind: suggestion.KindAsset},
		{Text: "Sales", Kind: suggestion.KindTag},
		{Text: "Presales Pipeline", Kind: suggestion.KindAsset},
		{Text: "Salse Forecast", Kind: suggestion.KindAsset},
		{Text: "Finance", Kind: suggestion.KindCategory},
		{Text: "sales report", Kind: suggestion.KindAsset},
	}
}
