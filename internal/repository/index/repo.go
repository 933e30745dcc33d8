// Package index is the RediSearch-backed asset index: document writes,
// structured full-text queries and suggestion candidates.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
)

// Key layout.
const (
	DocPrefix = "assetsearch:asset:"
	IndexName = "assetsearch:assets:idx"
)

// store is the consumer interface for the asset index (ISP).
//
//nolint:interfacebloat // writes, reads and index lifecycle share one key space
type store interface {
	HReplace(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexInfo(ctx context.Context, name string) (map[string]string, error)
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
	Ping(ctx context.Context) error
}

// Repo implements the engine side of search, suggest and sync.
type Repo struct {
	store store
}

// New creates an index repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Backend identifies the engine.
func (r *Repo) Backend() engine.Backend { return engine.BackendRedis }

func docKey(id string) string { return DocPrefix + id }

// Definition returns the FT.CREATE schema for asset documents.
func Definition() *db.IndexDefinition {
	b := db.NewIndex(IndexName).Prefix(DocPrefix)
	for _, f := range asset.TextFields {
		b = b.TextWeighted(f.Name, f.Boost)
		if f.Name == asset.FieldName {
			b = b.Sortable()
		}
	}
	// Tags match exactly, like the keyword fields of the embedded index and
	// the equality predicates of the relational fallback.
	b = b.TagWithOpts(asset.FieldStatus, "", true).
		TagWithOpts(asset.FieldType, "", true).
		TagWithOpts(asset.FieldCategoryID, "", true).
		TagWithOpts(asset.FieldTags, asset.TagSeparator, true).
		TagWithOpts(asset.FieldHierarchyLevel1, "", true).
		TagWithOpts(asset.FieldHierarchyLevel2, "", true).
		TagWithOpts(asset.FieldHierarchyLevel3, "", true).
		Numeric(asset.FieldQualityScore).Sortable().
		Numeric(asset.FieldPopularity).Sortable().
		Numeric(asset.FieldCreatedAt).Sortable().
		Numeric(asset.FieldUpdatedAt).Sortable()
	return b.MustBuild()
}

// EnsureIndex creates the index when missing and reports whether it did.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return false, domain.NewTransient("index exists", err)
	}
	if exists {
		return false, nil
	}
	if err := r.store.CreateIndex(ctx, Definition()); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, domain.NewTransient("create index", err)
	}
	return true, nil
}

// Recreate drops and rebuilds the index definition. Document hashes survive
// and are re-indexed by the engine in the background.
func (r *Repo) Recreate(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return domain.NewTransient("drop index", err)
	}
	if err := r.store.CreateIndex(ctx, Definition()); err != nil {
		return domain.NewTransient("create index", err)
	}
	return nil
}

// Upsert replaces the whole document.
func (r *Repo) Upsert(ctx context.Context, doc asset.Document) error {
	if doc.ID == "" {
		return domain.NewValidation("id", "is required")
	}
	if err := r.store.HReplace(ctx, docKey(doc.ID), doc.ToFields()); err != nil {
		return domain.NewTransient("upsert "+doc.ID, err)
	}
	return nil
}

// Delete removes a document. Deleting an absent id is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, docKey(id)); err != nil {
		return domain.NewTransient("delete "+id, err)
	}
	return nil
}

// Get returns one indexed document.
func (r *Repo) Get(ctx context.Context, id string) (asset.Document, error) {
	m, err := r.store.HGetAll(ctx, docKey(id))
	if err != nil {
		return asset.Document{}, domain.NewTransient("get "+id, err)
	}
	if len(m) == 0 {
		return asset.Document{}, domain.ErrNotFound
	}
	return asset.FromFields(m), nil
}

// Search runs the structured query for req and returns the requested page.
func (r *Repo) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	q := &db.Query{
		IndexName:  IndexName,
		Text:       strings.Join(req.Tokens(), " "),
		Fields:     textFieldNames(),
		Mode:       db.MatchExact | db.MatchPrefix | db.MatchFuzzy,
		Filters:    req.Filters(),
		Offset:     req.Offset(),
		Limit:      req.PageSize(),
		WithScores: true,
	}
	if field, desc := req.Sort().Field(); field != "" {
		q.SortBy, q.SortDesc = field, desc
	}

	sr, err := r.store.Search(ctx, q)
	if err != nil {
		return result.Page{}, domain.NewTransient("engine search", err)
	}

	items := make([]result.Item, 0, len(sr.Entries))
	for i, e := range sr.Entries {
		items = append(items, result.Item{
			Document: entryDocument(e),
			Score:    e.Score,
			Position: req.Offset() + i,
		})
	}
	return result.NewPage(items, sr.Total, result.SourceEngine), nil
}

// SuggestCandidates returns names, category names and tags of documents whose
// text starts with or approximately matches prefix.
func (r *Repo) SuggestCandidates(ctx context.Context, prefix string, limit int) ([]suggestion.Candidate, error) {
	terms := request.Tokenize(prefix)
	if len(terms) == 0 {
		return nil, nil
	}
	sr, err := r.store.Search(ctx, &db.Query{
		IndexName:    IndexName,
		Text:         strings.Join(terms, " "),
		Fields:       []string{asset.FieldName, asset.FieldCategoryName, asset.FieldSearchText},
		Mode:         db.MatchPrefix | db.MatchFuzzy,
		Limit:        limit,
		ReturnFields: []string{asset.FieldName, asset.FieldCategoryName, asset.FieldTags},
	})
	if err != nil {
		return nil, domain.NewTransient("engine suggest", err)
	}

	out := make([]suggestion.Candidate, 0, len(sr.Entries)*2)
	for _, e := range sr.Entries {
		out = append(out, candidatesFromFields(e.Fields)...)
	}
	return out, nil
}

// AllIDs lists the ids of every indexed document.
func (r *Repo) AllIDs(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, DocPrefix+"*")
	if err != nil {
		return nil, domain.NewTransient("scan documents", err)
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, DocPrefix)
	}
	return ids, nil
}

// Stats reads FT.INFO.
func (r *Repo) Stats(ctx context.Context) (engine.Stats, error) {
	info, err := r.store.IndexInfo(ctx, IndexName)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return engine.Stats{}, fmt.Errorf("index %s: %w", IndexName, domain.ErrNotFound)
		}
		return engine.Stats{}, domain.NewTransient("index info", err)
	}
	st := engine.Stats{Backend: engine.BackendRedis, Name: IndexName}
	st.Documents, _ = strconv.ParseInt(info["num_docs"], 10, 64)
	st.Indexing = info["indexing"] != "" && info["indexing"] != "0"
	st.PercentIndexed, _ = strconv.ParseFloat(info["percent_indexed"], 64)
	return st, nil
}

// Ping checks engine connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func textFieldNames() []string {
	names := make([]string, len(asset.TextFields))
	for i, f := range asset.TextFields {
		names[i] = f.Name
	}
	return names
}

func entryDocument(e db.SearchEntry) asset.Document {
	doc := asset.FromFields(e.Fields)
	if doc.ID == "" {
		doc.ID = strings.TrimPrefix(e.Key, DocPrefix)
	}
	return doc
}

func candidatesFromFields(f map[string]string) []suggestion.Candidate {
	var out []suggestion.Candidate
	if v := f[asset.FieldName]; v != "" {
		out = append(out, suggestion.Candidate{Text: v, Kind: suggestion.KindAsset})
	}
	if v := f[asset.FieldCategoryName]; v != "" {
		out = append(out, suggestion.Candidate{Text: v, Kind: suggestion.KindCategory})
	}
	if raw := f[asset.FieldTags]; raw != "" {
		for _, t := range strings.Split(raw, asset.TagSeparator) {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, suggestion.Candidate{Text: t, Kind: suggestion.KindTag})
			}
		}
	}
	return out
}
