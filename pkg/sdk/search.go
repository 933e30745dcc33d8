package assetsearch

import (
	"context"
	"errors"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
)

// Search runs a full-text query with filters, sorting and pagination.
func (c *Client) Search(ctx context.Context, q Query) (_ Page, err error) {
	defer c.obs.observe("search", time.Now(), &err)
	req, err := toRequest(q)
	if err != nil {
		return Page{}, err
	}
	p, err := c.search.Search(ctx, &req)
	if err != nil {
		return Page{}, err
	}
	return toPage(p), nil
}

// LiveSearch is Search with the short interactive deadline.
func (c *Client) LiveSearch(ctx context.Context, q Query) (_ Page, err error) {
	defer c.obs.observe("live_search", time.Now(), &err)
	req, err := toRequest(q)
	if err != nil {
		return Page{}, err
	}
	p, err := c.search.LiveSearch(ctx, &req)
	if err != nil {
		return Page{}, err
	}
	return toPage(p), nil
}

// IntelligentSearch re-ranks the leading results by relevance, popularity,
// recency and the caller's affinities. Nil Weights uses the defaults.
func (c *Client) IntelligentSearch(ctx context.Context, q Query, opts IntelligentOptions) (_ RankedPage, err error) {
	defer c.obs.observe("intelligent_search", time.Now(), &err)
	req, err := toRequest(q)
	if err != nil {
		return RankedPage{}, err
	}
	res, err := c.search.IntelligentSearch(ctx, &req, searchuc.IntelligentOptions{
		UserID:          opts.UserID,
		Weights:         opts.Weights,
		Personalization: opts.Affinity,
	})
	if err != nil {
		return RankedPage{}, err
	}
	return RankedPage{Page: toPage(res.Page), Weights: res.Resolution.Weights}, nil
}

// Suggest returns up to size completions for prefix. Zero size means 10.
func (c *Client) Suggest(ctx context.Context, prefix string, size int) (_ []Suggestion, err error) {
	defer c.obs.observe("suggest", time.Now(), &err)
	ss, err := c.suggest.Suggest(ctx, prefix, size)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, len(ss))
	for i, s := range ss {
		out[i] = Suggestion{Text: s.Text, Kind: string(s.Kind), Score: s.Score}
	}
	return out, nil
}

func toRequest(q Query) (request.Request, error) {
	var expr filter.Expression
	if q.Filters != nil {
		var err error
		if expr, err = toExpression(*q.Filters); err != nil {
			return request.Request{}, err
		}
	}
	order := sortopt.Sort(q.Sort)
	if order == "" {
		order = sortopt.Relevance
	}
	return request.New(q.Text, expr, q.Page, q.PageSize, order)
}

func toExpression(f Filter) (filter.Expression, error) {
	must, err := toConditions(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := toConditions(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := toConditions(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, asValidation("filters", err)
	}
	return expr, nil
}

func toConditions(in []Condition) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(in))
	for _, c := range in {
		var (
			cond filter.Condition
			err  error
		)
		switch {
		case c.Match != "" && c.Range != nil:
			return nil, domain.NewValidation(c.Key, "set either match or range")
		case c.Range != nil:
			var r filter.Range
			if r, err = filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE); err == nil {
				cond, err = filter.NewRange(c.Key, r)
			}
		default:
			cond, err = filter.NewMatch(c.Key, c.Match)
		}
		if err != nil {
			return nil, asValidation(c.Key, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func asValidation(field string, err error) error {
	if errors.Is(err, ErrValidation) {
		return err
	}
	return domain.NewValidation(field, err.Error())
}

func toPage(p result.Page) Page {
	hits := make([]Hit, len(p.Items))
	for i, it := range p.Items {
		hits[i] = Hit{Document: it.Document, Score: it.Score}
	}
	return Page{Hits: hits, Total: p.Total, Source: string(p.Source), Cached: p.Cached}
}
