// Package catalog reads the relational system of record. It supplies
// authoritative records to the sync queue and serves the degraded
// substring search used when the index engine is unavailable.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
)

// FallbackScore is the uniform relevance given to every fallback hit.
const FallbackScore = 0.5

// Repo queries the catalog tables.
type Repo struct {
	db *sql.DB
}

// New creates a catalog repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Fetch loads the current records for ids. Ids without a row are absent from the map.
func (r *Repo) Fetch(ctx context.Context, ids []string) (map[string]asset.Document, error) {
	out := make(map[string]asset.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+fromClause+` WHERE a.id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.NewTransient("fetch records", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransient("fetch records", err)
	}
	return out, nil
}

// ListIDs pages through record ids in ascending order, starting after afterID.
func (r *Repo) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM assets WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, domain.NewTransient("list ids", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransient("list ids", err)
	}
	return ids, nil
}

// Search is the degraded query path: every token must appear, case
// insensitively, in at least one text column. Filters keep their index semantics.
func (r *Repo) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	pageSQL, countSQL, pageArgs, countArgs := buildSearch(
		req.Tokens(), req.Filters(), req.Sort(), req.PageSize(), req.Offset(),
	)

	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return result.Page{}, domain.NewTransient("fallback count", err)
	}
	if total == 0 || req.Offset() >= total {
		return result.NewPage(nil, total, result.SourceFallback), nil
	}

	rows, err := r.db.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return result.Page{}, domain.NewTransient("fallback search", err)
	}
	defer rows.Close()

	items := make([]result.Item, 0, req.PageSize())
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return result.Page{}, fmt.Errorf("scan record: %w", err)
		}
		items = append(items, result.Item{
			Document: d,
			Score:    FallbackScore,
			Position: req.Offset() + len(items),
		})
	}
	if err := rows.Err(); err != nil {
		return result.Page{}, domain.NewTransient("fallback search", err)
	}
	return result.NewPage(items, total, result.SourceFallback), nil
}

// SuggestCandidates returns names, category names and tags containing prefix,
// most frequent first.
func (r *Repo) SuggestCandidates(ctx context.Context, prefix string, limit int) ([]suggestion.Candidate, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, suggestSQL, "%"+escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, domain.NewTransient("fallback suggest", err)
	}
	defer rows.Close()

	var out []suggestion.Candidate
	for rows.Next() {
		var c suggestion.Candidate
		var kind string
		if err := rows.Scan(&c.Text, &kind); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		c.Kind = suggestion.Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransient("fallback suggest", err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanDocument(rows *sql.Rows) (asset.Document, error) {
	var d asset.Document
	var tags string
	err := rows.Scan(
		&d.ID, &d.Name, &d.Description, &d.SecondaryText, &d.Code, &d.Type,
		&d.CategoryID, &d.CategoryName, &d.Status, &tags,
		&d.HierarchyLevel1, &d.HierarchyLevel2, &d.HierarchyLevel3,
		&d.QualityScore, &d.Popularity, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return asset.Document{}, err
	}
	if tags != "" {
		d.Tags = strings.Split(tags, asset.TagSeparator)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d.WithSearchText(), nil
}
