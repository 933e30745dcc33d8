package search

import (
	"context"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
)

// Backend answers structured queries. Both the index engine and the
// relational fallback implement it.
type Backend interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
}

// Cache stores pages per freshness tier. Misses and errors both report false.
type Cache interface {
	Get(ctx context.Context, t tier.Tier, key string, dst any) bool
	Set(ctx context.Context, t tier.Tier, key string, v any)
}

// WeightResolver chooses the ranking weights for a caller.
type WeightResolver interface {
	ResolveWeights(ctx context.Context, userID, expID string, custom *ranking.Weights) (experiment.Resolution, error)
}

// Rewriter normalizes free-form query text before it is tokenized.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) (string, error)
}
