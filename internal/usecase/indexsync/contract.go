package indexsync

import (
	"context"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
)

// SourceReader resolves the current state of records in the system of record.
type SourceReader interface {
	// Fetch returns the records that still exist; missing ids are absent from the map.
	Fetch(ctx context.Context, ids []string) (map[string]asset.Document, error)
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// IndexWriter applies documents to the search index.
type IndexWriter interface {
	Upsert(ctx context.Context, doc asset.Document) error
	Delete(ctx context.Context, id string) error
	AllIDs(ctx context.Context) ([]string, error)
}

// CacheInvalidator drops cached read results.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tiers ...tier.Tier) (int, error)
}

// DeadLetterStore retains tasks that exhausted their retries.
type DeadLetterStore interface {
	Add(ctx context.Context, letters ...synctask.DeadLetter) error
	Recent(ctx context.Context, limit int) ([]synctask.DeadLetter, error)
}
