package result

import "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"

// Source names the backend that produced a page.
type Source string

// Result sources.
const (
	SourceEngine   Source = "engine"
	SourceFallback Source = "fallback"
)

// Item is a single search hit. Position is the 0-based order in which the
// producing backend returned it, across the whole result set.
type Item struct {
	Document asset.Document `json:"document" msgpack:"document"`
	Score    float64        `json:"score" msgpack:"score"`
	Position int            `json:"-" msgpack:"position"`
}

// Page is one page of search hits plus the total match count.
type Page struct {
	Items  []Item `json:"items" msgpack:"items"`
	Total  int    `json:"total" msgpack:"total"`
	Source Source `json:"source" msgpack:"source"`
	Cached bool   `json:"cached" msgpack:"-"`
}

// NewPage builds a page. Items is never nil so zero matches serialize as [].
func NewPage(items []Item, total int, source Source) Page {
	if items == nil {
		items = []Item{}
	}
	return Page{Items: items, Total: total, Source: source}
}

// Slice returns the window [offset, offset+limit) of p's items as a new page
// with the same total. Offsets past the end, negative offsets and
// non-positive limits yield an empty page.
func (p Page) Slice(offset, limit int) Page {
	if offset < 0 || limit <= 0 || offset >= len(p.Items) {
		out := NewPage(nil, p.Total, p.Source)
		out.Cached = p.Cached
		return out
	}
	end := offset + limit
	if end > len(p.Items) || end < offset {
		end = len(p.Items)
	}
	items := make([]Item, end-offset)
	copy(items, p.Items[offset:end])
	out := NewPage(items, p.Total, p.Source)
	out.Cached = p.Cached
	return out
}

// IDs returns the document ids in page order.
func (p Page) IDs() []string {
	ids := make([]string, len(p.Items))
	for i := range p.Items {
		ids[i] = p.Items[i].Document.ID
	}
	return ids
}
