package indexsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type mockSource struct {
	mu      sync.Mutex
	docs    map[string]asset.Document
	fetchFn func(ctx context.Context, ids []string) (map[string]asset.Document, error)
	listFn  func(ctx context.Context, afterID string, limit int) ([]string, error)
}

func (m *mockSource) Fetch(ctx context.Context, ids []string) (map[string]asset.Document, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]asset.Document)
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (m *mockSource) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, afterID, limit)
	}
	return nil, nil
}

type mockIndex struct {
	mu       sync.Mutex
	upserts  []string
	deletes  []string
	ids      []string
	upsertFn func(ctx context.Context, doc asset.Document) error
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockIndex) Upsert(ctx context.Context, doc asset.Document) error {
	m.mu.Lock()
	m.upserts = append(m.upserts, doc.ID)
	fn := m.upsertFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, doc)
	}
	return nil
}

func (m *mockIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.deletes = append(m.deletes, id)
	fn := m.deleteFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (m *mockIndex) AllIDs(context.Context) ([]string, error) { return m.ids, nil }

func (m *mockIndex) upserted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.upserts...)
}

type mockCache struct {
	calls [][]tier.Tier
	err   error
}

func (m *mockCache) Invalidate(_ context.Context, tiers ...tier.Tier) (int, error) {
	m.calls = append(m.calls, tiers)
	return len(tiers), m.err
}

type mockDeadStore struct {
	letters []synctask.DeadLetter
	addErr  error
}

func (m *mockDeadStore) Add(_ context.Context, letters ...synctask.DeadLetter) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.letters = append(m.letters, letters...)
	return nil
}

func (m *mockDeadStore) Recent(_ context.Context, _ int) ([]synctask.DeadLetter, error) {
	return append([]synctask.DeadLetter(nil), m.letters...), nil
}

type fixture struct {
	svc    *Service
	source *mockSource
	index  *mockIndex
	cache  *mockCache
	dead   *mockDeadStore
	clock  *fakeClock
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		source: &mockSource{docs: map[string]asset.Document{}},
		index:  &mockIndex{},
		cache:  &mockCache{},
		dead:   &mockDeadStore{},
		clock:  &fakeClock{t: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.svc = New(f.source, f.index, f.cache, f.dead, cfg, zap.NewNop(), opts...)
	return f
}

func (f *fixture) addRecords(ids ...string) {
	for _, id := range ids {
		f.source.docs[id] = asset.Document{ID: id, Name: "asset " + id}
	}
}
