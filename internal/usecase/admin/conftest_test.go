package admin

import (
	"context"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
)

// --- Mocks ---

type mockEngine struct {
	stats engine.Stats
	err   error
}

func (m *mockEngine) Stats(context.Context) (engine.Stats, error) { return m.stats, m.err }

type mockManagedEngine struct {
	mockEngine
	ensureFn   func(ctx context.Context) (bool, error)
	recreateFn func(ctx context.Context) error
}

func (m *mockManagedEngine) EnsureIndex(ctx context.Context) (bool, error) { return m.ensureFn(ctx) }
func (m *mockManagedEngine) Recreate(ctx context.Context) error          { return m.recreateFn(ctx) }

type bulkCall struct {
	ids      []string
	fullSync bool
	priority int
}

type mockQueue struct {
	bulks   []bulkCall
	status  indexsync.Status
	letters []synctask.DeadLetter
	err     error
}

func (m *mockQueue) ScheduleBulk(ids []string, fullSync bool, priority int) (synctask.Task, bool, error) {
	m.bulks = append(m.bulks, bulkCall{ids, fullSync, priority})
	if m.err != nil {
		return synctask.Task{}, false, m.err
	}
	return synctask.Task{
		ID: "t1", Seq: uint64(len(m.bulks)), Priority: priority,
		Payload: synctask.Bulk{IDs: ids, FullSync: fullSync},
	}, true, nil
}

func (m *mockQueue) Status() indexsync.Status { return m.status }

func (m *mockQueue) DeadLetters(_ context.Context, limit int) ([]synctask.DeadLetter, error) {
	if limit > 0 && len(m.letters) > limit {
		return m.letters[len(m.letters)-limit:], nil
	}
	return m.letters, nil
}

type mockCache struct {
	tiers []tier.Tier
	n     int
	err   error
}

func (m *mockCache) Invalidate(_ context.Context, tiers ...tier.Tier) (int, error) {
	m.tiers = append(m.tiers, tiers...)
	return m.n, m.err
}

type mockArchive struct {
	putFn func(ctx context.Context, letters []synctask.DeadLetter, ts time.Time) (string, error)
}

func (m *mockArchive) PutDeadLetters(ctx context.Context, letters []synctask.DeadLetter, ts time.Time) (string, error) {
	return m.putFn(ctx, letters, ts)
}
