package catalog

import (
	"strconv"
	"strings"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
)

const fromClause = ` FROM assets a LEFT JOIN asset_categories c ON c.id = a.category_id`

const selectColumns = `SELECT a.id, a.name, a.description, a.secondary_text, a.code, a.type,
	COALESCE(a.category_id, ''), COALESCE(c.name, ''), a.status, array_to_string(a.tags, ','),
	a.hierarchy_level1, a.hierarchy_level2, a.hierarchy_level3,
	a.quality_score, a.popularity, a.created_at, a.updated_at`

// textColumns are the columns a fallback token may match. Together they
// cover the same text the index keeps in searchText.
var textColumns = []string{
	"a.name",
	"a.description",
	"a.secondary_text",
	"a.code",
	"COALESCE(c.name, '')",
	"array_to_string(a.tags, ' ')",
	"a.hierarchy_level1",
	"a.hierarchy_level2",
	"a.hierarchy_level3",
}

// Tag predicates compare exactly, matching the case-sensitive engine tag fields.
var tagColumns = map[string]string{
	asset.FieldStatus:          "a.status",
	asset.FieldType:            "a.type",
	asset.FieldCategoryID:      "a.category_id",
	asset.FieldHierarchyLevel1: "a.hierarchy_level1",
	asset.FieldHierarchyLevel2: "a.hierarchy_level2",
	asset.FieldHierarchyLevel3: "a.hierarchy_level3",
}

// Timestamps compare as unix milliseconds, matching the index encoding.
var numericColumns = map[string]string{
	asset.FieldQualityScore: "a.quality_score",
	asset.FieldPopularity:   "a.popularity",
	asset.FieldCreatedAt:    "(EXTRACT(EPOCH FROM a.created_at) * 1000)",
	asset.FieldUpdatedAt:    "(EXTRACT(EPOCH FROM a.updated_at) * 1000)",
}

var sortColumns = map[sortopt.Sort]string{
	sortopt.Relevance:  "a.popularity DESC, a.id ASC",
	sortopt.Newest:     "a.updated_at DESC, a.id ASC",
	sortopt.Name:       "lower(a.name) ASC, a.id ASC",
	sortopt.Popularity: "a.popularity DESC, a.id ASC",
	sortopt.Quality:    "a.quality_score DESC, a.id ASC",
}

// whereBuilder accumulates SQL predicates with positional arguments.
type whereBuilder struct {
	preds []string
	args  []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

// tokens adds one predicate per token: a case-insensitive substring match
// against any text column.
func (w *whereBuilder) tokens(tokens []string) {
	for _, t := range tokens {
		p := w.arg("%" + escapeLike(t) + "%")
		ors := make([]string, len(textColumns))
		for i, col := range textColumns {
			ors[i] = col + " ILIKE " + p
		}
		w.preds = append(w.preds, "("+strings.Join(ors, " OR ")+")")
	}
}

func (w *whereBuilder) filters(expr filter.Expression) {
	for _, c := range expr.Must() {
		w.preds = append(w.preds, w.condition(c))
	}
	if should := expr.Should(); len(should) > 0 {
		ors := make([]string, len(should))
		for i, c := range should {
			ors[i] = w.condition(c)
		}
		w.preds = append(w.preds, "("+strings.Join(ors, " OR ")+")")
	}
	for _, c := range expr.MustNot() {
		w.preds = append(w.preds, "NOT "+w.condition(c))
	}
}

func (w *whereBuilder) condition(c filter.Condition) string {
	if c.IsMatch() {
		if c.Key() == asset.FieldTags {
			return "(" + w.arg(c.Match()) + " = ANY(a.tags))"
		}
		return "(" + tagColumns[c.Key()] + " = " + w.arg(c.Match()) + ")"
	}
	col := numericColumns[c.Key()]
	r := c.Range()
	var parts []string
	if r.GT() != nil {
		parts = append(parts, col+" > "+w.arg(*r.GT()))
	}
	if r.GTE() != nil {
		parts = append(parts, col+" >= "+w.arg(*r.GTE()))
	}
	if r.LT() != nil {
		parts = append(parts, col+" < "+w.arg(*r.LT()))
	}
	if r.LTE() != nil {
		parts = append(parts, col+" <= "+w.arg(*r.LTE()))
	}
	if len(parts) == 0 {
		return "TRUE"
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func (w *whereBuilder) sql() string {
	if len(w.preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.preds, " AND ")
}

// buildSearch returns the page query and the count query sharing one WHERE clause.
func buildSearch(tokens []string, expr filter.Expression, order sortopt.Sort, limit, offset int) (page, count string, pageArgs, countArgs []any) {
	var w whereBuilder
	w.tokens(tokens)
	w.filters(expr)
	where := w.sql()

	countArgs = append([]any(nil), w.args...)
	count = "SELECT COUNT(*)" + fromClause + where

	orderBy, ok := sortColumns[order]
	if !ok {
		orderBy = sortColumns[sortopt.Relevance]
	}
	lim := w.arg(limit)
	off := w.arg(offset)
	page = selectColumns + fromClause + where + " ORDER BY " + orderBy + " LIMIT " + lim + " OFFSET " + off
	return page, count, w.args, countArgs
}

// suggestSQL ranks matching names, category names and tags by how often they occur.
const suggestSQL = `SELECT text, kind FROM (
	SELECT a.name AS text, 'asset' AS kind, MAX(a.popularity) AS weight
	FROM assets a WHERE a.name ILIKE $1 GROUP BY a.name
	UNION ALL
	SELECT c.name, 'category', COUNT(a.id)
	FROM asset_categories c LEFT JOIN assets a ON a.category_id = c.id
	WHERE c.name ILIKE $1 GROUP BY c.name
	UNION ALL
	SELECT t.tag, 'tag', COUNT(*)
	FROM assets a CROSS JOIN LATERAL unnest(a.tags) AS t(tag)
	WHERE t.tag ILIKE $1 GROUP BY t.tag
) s ORDER BY weight DESC, text ASC LIMIT $2`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string { return likeEscaper.Replace(s) }
