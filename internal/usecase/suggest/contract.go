package suggest

import (
	"context"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
)

// CandidateSource lists completion candidates for a prefix. The index engine
// and the relational fallback both implement it.
type CandidateSource interface {
	SuggestCandidates(ctx context.Context, prefix string, limit int) ([]suggestion.Candidate, error)
}

// Cache stores candidate lists per freshness tier.
type Cache interface {
	Get(ctx context.Context, t tier.Tier, key string, dst any) bool
	Set(ctx context.Context, t tier.Tier, key string, v any)
}
