// Package bleveindex is an embedded asset index built on bleve. It serves the
// same queries as the RediSearch index and backs the in-process SDK.
package bleveindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
)

const (
	textAnalyzer = "assettext"
	// fieldSource stores the encoded document; it is not searchable.
	fieldSource = "source"
	// fieldNameSort is a lowercased keyword copy of name used for ordering.
	fieldNameSort = "nameSort"

	defaultWriteTimeout = 10 * time.Second
)

// ErrIndexClosed is returned after Close.
var ErrIndexClosed = errors.New("bleve index is closed")

// Index wraps a bleve index holding asset documents.
type Index struct {
	mu           sync.RWMutex
	index        bleve.Index
	closed       bool
	writeTimeout time.Duration
}

// Option configures an Index.
type Option func(*Index)

// WithWriteTimeout bounds each write when the caller's context has no deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(i *Index) {
		if d > 0 {
			i.writeTimeout = d
		}
	}
}

// NewMemOnly creates a volatile in-memory index.
func NewMemOnly(opts ...Option) (*Index, error) {
	m, err := BuildMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create mem index: %w", err)
	}
	return wrap(idx, opts), nil
}

// Open opens the index at path, creating it when absent.
func Open(path string, opts ...Option) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return wrap(idx, opts), nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	m, err := BuildMapping()
	if err != nil {
		return nil, err
	}
	idx, err = bleve.New(path, m)
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return wrap(idx, opts), nil
}

func wrap(idx bleve.Index, opts []Option) *Index {
	i := &Index{index: idx, writeTimeout: defaultWriteTimeout}
	for _, o := range opts {
		o(i)
	}
	return i
}

// BuildMapping returns the explicit document mapping. Text fields use a
// lowercase unicode analyzer without stop words so every query token can match.
func BuildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("register analyzer: %w", err)
	}

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range asset.TextFields {
		tm := bleve.NewTextFieldMapping()
		tm.Analyzer = textAnalyzer
		tm.Store = false
		tm.IncludeInAll = false
		doc.AddFieldMappingsAt(f.Name, tm)
	}
	for _, name := range []string{
		asset.FieldStatus, asset.FieldType, asset.FieldCategoryID, asset.FieldTags,
		asset.FieldHierarchyLevel1, asset.FieldHierarchyLevel2, asset.FieldHierarchyLevel3,
		fieldNameSort,
	} {
		km := bleve.NewKeywordFieldMapping()
		km.Analyzer = keyword.Name
		km.Store = false
		km.IncludeInAll = false
		doc.AddFieldMappingsAt(name, km)
	}
	for _, name := range []string{
		asset.FieldQualityScore, asset.FieldPopularity, asset.FieldCreatedAt, asset.FieldUpdatedAt,
	} {
		nm := bleve.NewNumericFieldMapping()
		nm.Store = false
		nm.IncludeInAll = false
		doc.AddFieldMappingsAt(name, nm)
	}
	src := bleve.NewTextFieldMapping()
	src.Index = false
	src.Store = true
	src.IncludeInAll = false
	doc.AddFieldMappingsAt(fieldSource, src)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = textAnalyzer
	return im, nil
}

// Backend identifies the engine.
func (i *Index) Backend() engine.Backend { return engine.BackendBleve }

// Upsert indexes doc, replacing any previous version.
func (i *Index) Upsert(ctx context.Context, doc asset.Document) error {
	if doc.ID == "" {
		return domain.NewValidation("id", "is required")
	}
	rec, err := toRecord(doc)
	if err != nil {
		return err
	}
	return i.write(ctx, "upsert "+doc.ID, func(idx bleve.Index) error {
		return idx.Index(doc.ID, rec)
	})
}

// UpsertBatch indexes docs in one bleve batch.
func (i *Index) UpsertBatch(ctx context.Context, docs []asset.Document) error {
	if len(docs) == 0 {
		return nil
	}
	return i.write(ctx, "upsert batch", func(idx bleve.Index) error {
		b := idx.NewBatch()
		for _, d := range docs {
			if d.ID == "" {
				return domain.NewValidation("id", "is required")
			}
			rec, err := toRecord(d)
			if err != nil {
				return err
			}
			if err := b.Index(d.ID, rec); err != nil {
				return fmt.Errorf("batch %s: %w", d.ID, err)
			}
		}
		return idx.Batch(b)
	})
}

// Delete removes a document; absent ids are ignored.
func (i *Index) Delete(ctx context.Context, id string) error {
	return i.write(ctx, "delete "+id, func(idx bleve.Index) error {
		return idx.Delete(id)
	})
}

// write runs fn on a goroutine so a stuck write cannot outlive ctx.
func (i *Index) write(ctx context.Context, op string, fn func(bleve.Index) error) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return domain.NewTransient(op, ErrIndexClosed)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.writeTimeout)
		defer cancel()
	}

	idx := i.index
	done := make(chan error, 1)
	go func() { done <- fn(idx) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, domain.ErrValidation) {
			return domain.NewTransient(op, err)
		}
		return err
	case <-ctx.Done():
		return domain.NewTransient(op, ctx.Err())
	}
}

// Stats reports the document count.
func (i *Index) Stats(_ context.Context) (engine.Stats, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return engine.Stats{}, domain.NewTransient("stats", ErrIndexClosed)
	}
	n, err := i.index.DocCount()
	if err != nil {
		return engine.Stats{}, domain.NewTransient("stats", err)
	}
	return engine.Stats{
		Backend:        engine.BackendBleve,
		Name:           i.index.Name(),
		Documents:      int64(n),
		PercentIndexed: 1,
	}, nil
}

// Ping reports whether the index is open.
func (i *Index) Ping(_ context.Context) error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return ErrIndexClosed
	}
	return nil
}

// Close closes the underlying index. Closing twice is a no-op.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.index.Close()
}

// record is the shape handed to bleve. Field names match the asset schema.
type record struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	SecondaryText   string   `json:"secondaryText"`
	Code            string   `json:"code"`
	CategoryName    string   `json:"categoryName"`
	SearchText      string   `json:"searchText"`
	Status          string   `json:"status"`
	Type            string   `json:"type"`
	CategoryID      string   `json:"categoryId"`
	Tags            []string `json:"tags"`
	HierarchyLevel1 string   `json:"hierarchyLevel1"`
	HierarchyLevel2 string   `json:"hierarchyLevel2"`
	HierarchyLevel3 string   `json:"hierarchyLevel3"`
	NameSort        string   `json:"nameSort"`
	QualityScore    float64  `json:"qualityScore"`
	Popularity      float64  `json:"popularity"`
	CreatedAt       float64  `json:"createdAt"`
	UpdatedAt       float64  `json:"updatedAt"`
	Source          string   `json:"source"`
}

func toRecord(d asset.Document) (record, error) {
	d = d.WithSearchText()
	src, err := json.Marshal(d)
	if err != nil {
		return record{}, fmt.Errorf("encode %s: %w", d.ID, err)
	}
	createdAt, _ := d.Numeric(asset.FieldCreatedAt)
	updatedAt, _ := d.Numeric(asset.FieldUpdatedAt)
	return record{
		Name:            d.Name,
		Description:     d.Description,
		SecondaryText:   d.SecondaryText,
		Code:            d.Code,
		CategoryName:    d.CategoryName,
		SearchText:      d.SearchText,
		Status:          d.Status,
		Type:            d.Type,
		CategoryID:      d.CategoryID,
		Tags:            d.Tags,
		HierarchyLevel1: d.HierarchyLevel1,
		HierarchyLevel2: d.HierarchyLevel2,
		HierarchyLevel3: d.HierarchyLevel3,
		NameSort:        lower(d.Name),
		QualityScore:    d.QualityScore,
		Popularity:      float64(d.Popularity),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		Source:          string(src),
	}, nil
}

func fromSource(id string, fields map[string]interface{}) asset.Document {
	var d asset.Document
	if raw, ok := fields[fieldSource].(string); ok {
		_ = json.Unmarshal([]byte(raw), &d)
	}
	d.ID = id
	return d.WithSearchText()
}
