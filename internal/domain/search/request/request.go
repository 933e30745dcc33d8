package request

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength  = 512
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage bounds the page number so the offset never overflows.
	MaxPage = 100_000
)

// Request is a validated search query.
type Request struct {
	query    string
	filters  filter.Expression
	page     int
	pageSize int
	sort     sortopt.Sort
}

// New validates and normalizes search parameters.
// Defaults: page=1, pageSize=20, sort=relevance. pageSize is clamped to 100.
func New(query string, filters filter.Expression, page, pageSize int, order sortopt.Sort) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.NewValidation("query", "is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, domain.NewValidation("query", "too long (max "+strconv.Itoa(MaxQueryLength)+" chars)")
	}
	if len(Tokenize(query)) == 0 {
		return Request{}, domain.NewValidation("query", "has no searchable terms")
	}
	if page < 0 {
		return Request{}, domain.NewValidation("page", "must be positive")
	}
	if page == 0 {
		page = 1
	}
	if page > MaxPage {
		return Request{}, domain.NewValidation("page", "too large (max "+strconv.Itoa(MaxPage)+")")
	}
	if pageSize < 0 {
		return Request{}, domain.NewValidation("pageSize", "must be positive")
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if order == "" {
		order = sortopt.Relevance
	}
	if !order.IsValid() {
		return Request{}, domain.NewValidation("sort", "unsupported value "+strconv.Quote(string(order)))
	}
	if err := validateFilters(filters); err != nil {
		return Request{}, err
	}
	return Request{query: query, filters: filters, page: page, pageSize: pageSize, sort: order}, nil
}

func validateFilters(e filter.Expression) error {
	for _, group := range [][]filter.Condition{e.Must(), e.Should(), e.MustNot()} {
		for _, c := range group {
			switch {
			case c.IsMatch() && !asset.IsTagField(c.Key()):
				return domain.NewValidation("filters", "field "+strconv.Quote(c.Key())+" does not support match")
			case c.IsRange() && !asset.IsNumericField(c.Key()):
				return domain.NewValidation("filters", "field "+strconv.Quote(c.Key())+" does not support range")
			}
		}
	}
	return nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Filters returns the filter expression.
func (r *Request) Filters() filter.Expression { return r.filters }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// PageSize returns the maximum results per page.
func (r *Request) PageSize() int { return r.pageSize }

// Offset returns the number of results skipped before this page.
func (r *Request) Offset() int { return (r.page - 1) * r.pageSize }

// Sort returns the requested ordering.
func (r *Request) Sort() sortopt.Sort { return r.sort }

// Tokens splits the query into lowercase terms.
func (r *Request) Tokens() []string { return Tokenize(r.query) }

// Window returns a copy of r that fetches the first n results, used to collect
// re-ranking candidates.
func (r Request) Window(n int) Request {
	r.page = 1
	r.pageSize = n
	return r
}

// CacheKey is a stable digest of the canonical request. Term order and case in
// the query do not matter for cache identity; filter condition order does not either.
func (r *Request) CacheKey() string {
	terms := r.Tokens()
	sort.Strings(terms)
	canonical := strings.Join([]string{
		strings.Join(terms, " "),
		r.filters.Canonical(),
		strconv.Itoa(r.page),
		strconv.Itoa(r.pageSize),
		string(r.sort),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}

// Tokenize lowercases s and splits it on anything that is not a letter, digit or underscore.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
}
