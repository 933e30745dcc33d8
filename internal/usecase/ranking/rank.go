// Package ranking re-scores search candidates from engine relevance,
// popularity, recency and the caller's affinities. Rank is pure: the same
// inputs always produce the same order.
package ranking

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	domranking "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
)

// Defaults for Params.
const (
	DefaultHalfLife      = 30 * 24 * time.Hour
	DefaultPopularityCap = 1000
)

// Relevance blend between the backend score and the lexical name match.
const (
	engineShare  = 0.7
	lexicalShare = 0.3
)

// Lexical name match grades.
const (
	matchExact   = 1.0
	matchPrefix  = 0.8
	matchContain = 0.6
	matchOverlap = 0.5
)

// Personalization blend between category and tag affinity.
const (
	categoryShare = 0.6
	tagShare      = 0.4
)

// Params are the non-weight inputs of Rank.
type Params struct {
	Now time.Time
	// HalfLife is the age at which recency decays to 0.5.
	HalfLife time.Duration
	// PopularityCap is the minimum denominator for popularity normalization.
	PopularityCap int64
}

func (p Params) withDefaults() Params {
	if p.HalfLife <= 0 {
		p.HalfLife = DefaultHalfLife
	}
	if p.PopularityCap <= 0 {
		p.PopularityCap = DefaultPopularityCap
	}
	return p
}

// Scored is a ranked item with its signal breakdown.
type Scored struct {
	Item    result.Item        `json:"item"`
	Signals domranking.Signals `json:"signals"`
	Score   float64            `json:"score"`
}

// Rank scores items and orders them by final score, then by their original
// position, then by id.
func Rank(items []result.Item, query string, w domranking.Weights, pers domranking.Personalization, params Params) []Scored {
	params = params.withDefaults()
	w = w.Normalized()

	var maxScore float64
	maxPop := params.PopularityCap
	for _, it := range items {
		maxScore = math.Max(maxScore, it.Score)
		maxPop = max(maxPop, it.Document.Popularity)
	}
	maxCat := maxValue(pers.CategoryAffinity)
	maxTag := maxValue(pers.TagAffinity)
	q := strings.ToLower(strings.TrimSpace(query))
	qTokens := request.Tokenize(query)

	out := make([]Scored, len(items))
	for i, it := range items {
		sig := domranking.Signals{
			Relevance:       relevance(it.Score, maxScore, it.Document.Name, q, qTokens),
			Popularity:      popularity(it.Document.Popularity, maxPop),
			Recency:         recency(it.Document, params.Now, params.HalfLife),
			Personalization: affinity(it.Document, pers, maxCat, maxTag),
		}
		out[i] = Scored{Item: it, Signals: sig, Score: sig.Combine(w)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.Position != b.Item.Position {
			return a.Item.Position < b.Item.Position
		}
		return a.Item.Document.ID < b.Item.Document.ID
	})
	return out
}

func relevance(score, maxScore float64, name, q string, qTokens []string) float64 {
	var norm float64
	if maxScore > 0 && score > 0 {
		norm = score / maxScore
	}
	return engineShare*norm + lexicalShare*lexicalMatch(strings.ToLower(name), q, qTokens)
}

// lexicalMatch grades how well the asset name matches the raw query.
func lexicalMatch(name, q string, qTokens []string) float64 {
	if q == "" || name == "" {
		return 0
	}
	switch {
	case name == q:
		return matchExact
	case strings.HasPrefix(name, q):
		return matchPrefix
	case strings.Contains(name, q):
		return matchContain
	}
	if len(qTokens) == 0 {
		return 0
	}
	nameTokens := make(map[string]struct{})
	for _, t := range request.Tokenize(name) {
		nameTokens[t] = struct{}{}
	}
	hits := 0
	for _, t := range qTokens {
		if _, ok := nameTokens[t]; ok {
			hits++
		}
	}
	return matchOverlap * float64(hits) / float64(len(qTokens))
}

func popularity(pop, maxPop int64) float64 {
	if pop <= 0 || maxPop <= 0 {
		return 0
	}
	return math.Min(math.Log1p(float64(pop))/math.Log1p(float64(maxPop)), 1)
}

func recency(d asset.Document, now time.Time, halfLife time.Duration) float64 {
	ts := d.UpdatedAt
	if ts.IsZero() {
		ts = d.CreatedAt
	}
	if ts.IsZero() {
		return 0
	}
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

func affinity(d asset.Document, p domranking.Personalization, maxCat, maxTag float64) float64 {
	var cat, tag float64
	if maxCat > 0 {
		v, ok := p.CategoryAffinity[d.CategoryID]
		if !ok {
			v = p.CategoryAffinity[d.CategoryName]
		}
		cat = v / maxCat
	}
	if maxTag > 0 {
		for _, t := range d.Tags {
			tag = math.Max(tag, p.TagAffinity[t]/maxTag)
		}
	}
	return categoryShare*cat + tagShare*tag
}

func maxValue(m map[string]float64) float64 {
	var out float64
	for _, v := range m {
		out = math.Max(out, v)
	}
	return out
}
