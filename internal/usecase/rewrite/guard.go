// Package rewrite meters language-model query rewriting against a token budget.
package rewrite

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domrewrite "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/rewrite"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// Limiter is the budget as seen by Guard.
type Limiter interface {
	Allow() error
	Record(tokens int64)
	Remaining() (daily, monthly int64)
}

// Guard adapts a Completer to the search rewriter contract, refusing work
// once the budget is spent and billing every completion.
type Guard struct {
	inner    domrewrite.Completer
	provider string
	model    string
	budget   Limiter
	logger   *zap.Logger
}

// NewGuard wraps inner. budget may be nil.
func NewGuard(inner domrewrite.Completer, provider, model string, budget Limiter, logger *zap.Logger) *Guard {
	return &Guard{inner: inner, provider: provider, model: model, budget: budget, logger: logger}
}

// Rewrite returns the rewritten query.
func (g *Guard) Rewrite(ctx context.Context, query string) (string, error) {
	if g.budget != nil {
		if err := g.budget.Allow(); err != nil {
			return "", fmt.Errorf("rewrite budget: %w", err)
		}
	}

	start := time.Now()
	res, err := g.inner.Complete(ctx, query)
	if err != nil {
		g.logger.Warn("Rewrite request failed",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", fmt.Errorf("rewrite: %w", err)
	}

	if g.budget != nil && res.TotalTokens > 0 {
		g.budget.Record(int64(res.TotalTokens))
		daily, monthly := g.budget.Remaining()
		metrics.RewriteBudgetTokensRemaining.WithLabelValues(g.provider, "daily").Set(float64(daily))
		metrics.RewriteBudgetTokensRemaining.WithLabelValues(g.provider, "monthly").Set(float64(monthly))
	}
	return res.Query, nil
}
