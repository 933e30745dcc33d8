package db

import "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"

// MatchMode selects which term expansions a text query uses. Modes combine with |.
type MatchMode uint8

// Term expansions.
const (
	MatchExact MatchMode = 1 << iota
	MatchPrefix
	MatchFuzzy
)

// Has reports whether m includes mode.
func (m MatchMode) Has(mode MatchMode) bool { return m&mode != 0 }

// Query is the input for a full-text search. Each term of Text must match at
// least one of Fields through one of the enabled expansions; terms are ANDed.
// Empty Text matches every document that passes Filters.
type Query struct {
	IndexName    string
	Text         string
	Fields       []string
	Mode         MatchMode
	Filters      filter.Expression
	Offset       int
	Limit        int
	SortBy       string
	SortDesc     bool
	WithScores   bool
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
