package assetsearch

import (
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
)

// Document is one searchable catalog asset.
type Document = asset.Document

// Weights is a ranking weight vector used by IntelligentSearch.
type Weights = ranking.Weights

// IndexStats reports the engine's document count and indexing progress.
type IndexStats = engine.Stats

// Affinity carries a user's interaction counts per category and tag.
type Affinity = ranking.Personalization

// Sort options.
const (
	SortRelevance  = "relevance"
	SortNewest     = "newest"
	SortName       = "name"
	SortPopularity = "popularity"
	SortQuality    = "quality"
)

// Query describes one search request. Zero Page and PageSize use the defaults (1 and 20).
type Query struct {
	Text     string
	Filters  *Filter
	Page     int
	PageSize int
	Sort     string
}

// Filter is a set of must/should/must_not conditions.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// Condition matches a tag field exactly or a numeric field against a range.
type Condition struct {
	Key   string
	Match string       // non-empty for tag match
	Range *NumberRange // non-nil for numeric range
}

// NumberRange bounds a numeric field. Timestamps compare as unix milliseconds.
type NumberRange struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}

// Hit is a single search result.
type Hit struct {
	Document Document
	Score    float64
}

// Page is one page of results.
type Page struct {
	Hits   []Hit
	Total  int
	Source string // "engine" or "fallback"
	Cached bool
}

// IntelligentOptions steer re-ranking.
type IntelligentOptions struct {
	UserID   string
	Weights  *Weights
	Affinity Affinity
}

// RankedPage is a re-ranked page with the weights that produced it.
type RankedPage struct {
	Page
	Weights Weights
}

// Suggestion is a scored type-ahead completion.
type Suggestion struct {
	Text  string
	Kind  string // "asset", "category" or "tag"
	Score float64
}

// SyncStatus summarizes the sync queue.
type SyncStatus struct {
	Ready      int
	Delayed    int
	Processing int
	Processed  uint64
	Failed     uint64
	Dead       uint64
	Running    bool
}
