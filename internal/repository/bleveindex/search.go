package bleveindex

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
)

// Term expansion thresholds and relative boosts.
const (
	minPrefixLen = 2
	minFuzzyLen  = 4
	prefixBoost  = 0.5
	fuzzyBoost   = 0.25
	scanPageSize = 1000
)

// Search runs the structured query for req and returns the requested page.
func (i *Index) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	q := buildQuery(req.Tokens(), req.Filters())
	sr := bleve.NewSearchRequestOptions(q, req.PageSize(), req.Offset(), false)
	sr.Fields = []string{fieldSource}
	sr.SortBy(sortOrder(req))

	res, err := i.search(ctx, "engine search", sr)
	if err != nil {
		return result.Page{}, err
	}

	items := make([]result.Item, 0, len(res.Hits))
	for n, hit := range res.Hits {
		items = append(items, result.Item{
			Document: fromSource(hit.ID, hit.Fields),
			Score:    hit.Score,
			Position: req.Offset() + n,
		})
	}
	return result.NewPage(items, int(res.Total), result.SourceEngine), nil
}

// SuggestCandidates returns names, category names and tags of documents whose
// name, category or search text starts with or approximately matches prefix.
func (i *Index) SuggestCandidates(ctx context.Context, prefix string, limit int) ([]suggestion.Candidate, error) {
	terms := request.Tokenize(prefix)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	fields := []asset.TextField{
		{Name: asset.FieldName, Boost: 3},
		{Name: asset.FieldCategoryName, Boost: 2},
		{Name: asset.FieldSearchText, Boost: 1},
	}
	clauses := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		clauses = append(clauses, termQuery(t, fields, false))
	}
	sr := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), limit, 0, false)
	sr.Fields = []string{fieldSource}

	res, err := i.search(ctx, "engine suggest", sr)
	if err != nil {
		return nil, err
	}
	out := make([]suggestion.Candidate, 0, len(res.Hits)*2)
	for _, hit := range res.Hits {
		d := fromSource(hit.ID, hit.Fields)
		out = append(out, suggestion.Candidate{Text: d.Name, Kind: suggestion.KindAsset})
		if d.CategoryName != "" {
			out = append(out, suggestion.Candidate{Text: d.CategoryName, Kind: suggestion.KindCategory})
		}
		for _, t := range d.Tags {
			out = append(out, suggestion.Candidate{Text: t, Kind: suggestion.KindTag})
		}
	}
	return out, nil
}

// Get returns one indexed document.
func (i *Index) Get(ctx context.Context, id string) (asset.Document, error) {
	sr := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	sr.Fields = []string{fieldSource}
	res, err := i.search(ctx, "get "+id, sr)
	if err != nil {
		return asset.Document{}, err
	}
	if len(res.Hits) == 0 {
		return asset.Document{}, domain.ErrNotFound
	}
	return fromSource(res.Hits[0].ID, res.Hits[0].Fields), nil
}

// AllIDs lists the ids of every indexed document in id order.
func (i *Index) AllIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for from := 0; ; from += scanPageSize {
		sr := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), scanPageSize, from, false)
		sr.SortBy([]string{"_id"})
		res, err := i.search(ctx, "scan documents", sr)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < scanPageSize {
			return ids, nil
		}
	}
}

func (i *Index) search(ctx context.Context, op string, sr *bleve.SearchRequest) (*bleve.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, domain.NewTransient(op, ErrIndexClosed)
	}
	res, err := i.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, domain.NewTransient(op, err)
	}
	return res, nil
}

// buildQuery ANDs one clause per token with the filter groups.
func buildQuery(tokens []string, expr filter.Expression) query.Query {
	bq := bleve.NewBooleanQuery()
	if len(tokens) == 0 {
		bq.AddMust(bleve.NewMatchAllQuery())
	}
	for _, t := range tokens {
		bq.AddMust(termQuery(t, asset.TextFields, true))
	}
	for _, c := range expr.Must() {
		bq.AddMust(conditionQuery(c))
	}
	if should := expr.Should(); len(should) > 0 {
		alts := make([]query.Query, len(should))
		for n, c := range should {
			alts[n] = conditionQuery(c)
		}
		bq.AddMust(bleve.NewDisjunctionQuery(alts...))
	}
	for _, c := range expr.MustNot() {
		bq.AddMustNot(conditionQuery(c))
	}
	return bq
}

// termQuery matches token in any of fields, exactly (when exact is set), by
// prefix, or within one edit.
func termQuery(token string, fields []asset.TextField, exact bool) query.Query {
	alts := make([]query.Query, 0, len(fields)*3)
	for _, f := range fields {
		if exact || len(token) < minPrefixLen {
			m := bleve.NewMatchQuery(token)
			m.SetField(f.Name)
			m.SetBoost(f.Boost)
			alts = append(alts, m)
		}
		if len(token) >= minPrefixLen {
			p := bleve.NewPrefixQuery(token)
			p.SetField(f.Name)
			p.SetBoost(f.Boost * prefixBoost)
			alts = append(alts, p)
		}
		if len(token) >= minFuzzyLen {
			fz := bleve.NewFuzzyQuery(token)
			fz.SetField(f.Name)
			fz.SetFuzziness(1)
			fz.SetBoost(f.Boost * fuzzyBoost)
			alts = append(alts, fz)
		}
	}
	return bleve.NewDisjunctionQuery(alts...)
}

func conditionQuery(c filter.Condition) query.Query {
	if c.IsMatch() {
		tq := bleve.NewTermQuery(c.Match())
		tq.SetField(c.Key())
		return tq
	}
	r := c.Range()
	var lo, hi *float64
	var loIncl, hiIncl bool
	switch {
	case r.GT() != nil:
		lo = r.GT()
	case r.GTE() != nil:
		lo, loIncl = r.GTE(), true
	}
	switch {
	case r.LT() != nil:
		hi = r.LT()
	case r.LTE() != nil:
		hi, hiIncl = r.LTE(), true
	}
	nq := bleve.NewNumericRangeInclusiveQuery(lo, hi, &loIncl, &hiIncl)
	nq.SetField(c.Key())
	return nq
}

// sortOrder maps the request sort to bleve sort keys with the id as the final tiebreak.
func sortOrder(req *request.Request) []string {
	field, desc := req.Sort().Field()
	if field == "" {
		return []string{"-_score", "_id"}
	}
	if field == asset.FieldName {
		field = fieldNameSort
	}
	if desc {
		field = "-" + field
	}
	return []string{field, "-_score", "_id"}
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
