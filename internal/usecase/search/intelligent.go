package search

import (
	"context"

	"go.uber.org/zap"

	domranking "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/ranking"
)

// IntelligentOptions select the weights and affinities used to re-rank.
type IntelligentOptions struct {
	UserID          string
	ExperimentID    string
	Weights         *domranking.Weights
	Personalization domranking.Personalization
	// Rewrite runs the query through the rewriter, when one is configured.
	Rewrite bool
}

// Intelligent is a re-ranked page. Signals is aligned with Page.Items and is
// empty when the sort option bypassed re-ranking.
type Intelligent struct {
	result.Page
	Query      string                `json:"query"`
	Resolution experiment.Resolution `json:"weights"`
	Signals    []domranking.Signals  `json:"signals,omitempty"`
}

// IntelligentSearch fetches the leading candidate window, re-ranks it with
// the resolved weights and returns the requested page of the new order.
// The re-ranked result set is the window, so Total never exceeds it.
// Non-relevance sorts are answered directly.
func (s *Service) IntelligentSearch(
	ctx context.Context, req *request.Request, opts IntelligentOptions,
) (Intelligent, error) {
	req = s.rewrite(ctx, req, opts.Rewrite)

	res, err := s.resolveWeights(ctx, opts)
	if err != nil {
		return Intelligent{}, err
	}

	if req.Sort() != sortopt.Relevance {
		page, err := s.execute(ctx, ModeIntelligent, tier.Search, s.cfg.SearchTimeout, req)
		if err != nil {
			return Intelligent{}, err
		}
		return Intelligent{Page: page, Query: req.Query(), Resolution: res}, nil
	}

	window := req.Window(s.cfg.CandidateWindow)
	candidates, err := s.execute(ctx, ModeIntelligent, tier.Search, s.cfg.SearchTimeout, &window)
	if err != nil {
		return Intelligent{}, err
	}

	scored := ranking.Rank(candidates.Items, req.Query(), res.Weights, opts.Personalization, ranking.Params{
		Now:           s.now(),
		HalfLife:      s.cfg.HalfLife,
		PopularityCap: s.cfg.PopularityCap,
	})
	items := make([]result.Item, len(scored))
	for i, sc := range scored {
		items[i] = result.Item{Document: sc.Item.Document, Score: sc.Score, Position: i}
	}
	ranked := result.NewPage(items, min(candidates.Total, len(items)), candidates.Source)
	ranked.Cached = candidates.Cached

	page := ranked.Slice(req.Offset(), req.PageSize())
	signals := make([]domranking.Signals, len(page.Items))
	for i := range page.Items {
		signals[i] = scored[req.Offset()+i].Signals
	}
	return Intelligent{Page: page, Query: req.Query(), Resolution: res, Signals: signals}, nil
}

// rewrite returns req with the rewritten query, or req unchanged when
// rewriting is off, fails or yields an unusable query.
func (s *Service) rewrite(ctx context.Context, req *request.Request, enabled bool) *request.Request {
	if !enabled || s.rewriter == nil {
		return req
	}
	q, err := s.rewriter.Rewrite(ctx, req.Query())
	if err != nil {
		s.logger.Warn("Query rewrite failed", zap.String("query", req.Query()), zap.Error(err))
		return req
	}
	next, err := request.New(q, req.Filters(), req.Page(), req.PageSize(), req.Sort())
	if err != nil {
		s.logger.Debug("Rewritten query rejected", zap.String("rewritten", q), zap.Error(err))
		return req
	}
	return &next
}

func (s *Service) resolveWeights(ctx context.Context, opts IntelligentOptions) (experiment.Resolution, error) {
	if s.weights != nil {
		return s.weights.ResolveWeights(ctx, opts.UserID, opts.ExperimentID, opts.Weights)
	}
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return experiment.Resolution{}, err
		}
		return experiment.Resolution{Weights: *opts.Weights, Source: experiment.SourceCustom}, nil
	}
	return experiment.Resolution{Weights: domranking.DefaultWeights(), Source: experiment.SourceDefault}, nil
}
