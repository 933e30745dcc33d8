package admin

import (
	"context"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
)

// Engine reports index statistics.
type Engine interface {
	Stats(ctx context.Context) (engine.Stats, error)
}

// IndexManager is implemented by engines whose index definition lives
// outside the process.
type IndexManager interface {
	EnsureIndex(ctx context.Context) (bool, error)
	Recreate(ctx context.Context) error
}

// Queue is the sync queue surface used by admin operations.
type Queue interface {
	ScheduleBulk(ids []string, fullSync bool, priority int) (synctask.Task, bool, error)
	Status() indexsync.Status
	DeadLetters(ctx context.Context, limit int) ([]synctask.DeadLetter, error)
}

// CacheInvalidator clears cache tiers.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tiers ...tier.Tier) (int, error)
}

// Archive exports dead letters to object storage.
type Archive interface {
	PutDeadLetters(ctx context.Context, letters []synctask.DeadLetter, ts time.Time) (string, error)
}
