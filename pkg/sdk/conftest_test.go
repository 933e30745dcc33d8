package assetsearch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func fixtures() []Document {
	return []Document{
		{ID: "a1", Name: "Sales Report", Description: "monthly revenue", Status: "published", Type: "report",
			CategoryName: "Finance", Tags: []string{"finance"}, Popularity: 40, QualityScore: 0.9, UpdatedAt: base},
		{ID: "a2", Name: "Sales Orders", Description: "order lines", Status: "published", Type: "table",
			CategoryName: "Commerce", Tags: []string{"orders"}, Popularity: 900, QualityScore: 0.5, UpdatedAt: base.Add(time.Hour)},
		{ID: "a3", Name: "Supplier Dim", Description: "supplier master", Status: "draft", Type: "table",
			CategoryName: "Procurement", Tags: []string{"mdm"}, Popularity: 3, QualityScore: 0.7, UpdatedAt: base.Add(2 * time.Hour)},
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), append([]Option{WithMemoryIndex()}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// memSource is an in-memory system of record.
type memSource struct {
	mu      sync.Mutex
	records map[string]Document
}

func newMemSource(docs ...Document) *memSource {
	s := &memSource{records: make(map[string]Document)}
	for _, d := range docs {
		s.records[d.ID] = d
	}
	return s
}

func (s *memSource) put(d Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[d.ID] = d
}

func (s *memSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

func (s *memSource) Fetch(_ context.Context, ids []string) (map[string]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Document, len(ids))
	for _, id := range ids {
		if d, ok := s.records[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (s *memSource) ListIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.records {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func hitIDs(p Page) []string {
	out := make([]string, len(p.Hits))
	for i, h := range p.Hits {
		out[i] = h.Document.ID
	}
	return out
}
