package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/filter"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/sortopt"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type searchBody struct {
	Query    string      `json:"query"`
	Filters  *filterBody `json:"filters,omitempty"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Sort     string      `json:"sort"`
}

type intelligentBody struct {
	searchBody
	UserID          string                  `json:"userId"`
	ExperimentID    string                  `json:"experimentId"`
	Weights         *ranking.Weights        `json:"weights"`
	Personalization ranking.Personalization `json:"personalization"`
	Rewrite         bool                    `json:"rewrite"`
}

type filterBody struct {
	Must    []conditionBody `json:"must"`
	Should  []conditionBody `json:"should"`
	MustNot []conditionBody `json:"mustNot"`
}

type conditionBody struct {
	Key   string     `json:"key"`
	Match *string    `json:"match,omitempty"`
	Range *rangeBody `json:"range,omitempty"`
}

type rangeBody struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

type syncBody struct {
	Type     synctask.Type `json:"type"`
	ID       string        `json:"id"`
	IDs      []string      `json:"ids"`
	FullSync bool          `json:"fullSync"`
	Priority *int          `json:"priority"`
}

type syncAccepted struct {
	Ref    string        `json:"ref"`
	Queued bool          `json:"queued"`
	Task   synctask.Task `json:"task"`
}

type experimentBody struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Variants    []domexp.Variant `json:"variants"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

type outcomeBody struct {
	UserID    string             `json:"userId"`
	SessionID string             `json:"sessionId"`
	Metrics   map[string]float64 `json:"metrics"`
}

type resyncBody struct {
	IDs      []string `json:"ids"`
	FullSync bool     `json:"fullSync"`
}

// decodeBody reads one JSON value from the request body. Unknown fields are rejected.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidation("body", "is required")
		}
		return domain.NewValidation("body", err.Error())
	}
	return nil
}

func (b searchBody) toRequest() (*request.Request, error) {
	expr, err := filtersFromBody(b.Filters)
	if err != nil {
		return nil, err
	}
	req, err := request.New(b.Query, expr, b.Page, b.PageSize, sortopt.Sort(b.Sort))
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (b intelligentBody) options() searchuc.IntelligentOptions {
	return searchuc.IntelligentOptions{
		UserID:          b.UserID,
		ExperimentID:    b.ExperimentID,
		Weights:         b.Weights,
		Personalization: b.Personalization,
		Rewrite:         b.Rewrite,
	}
}

func filtersFromBody(f *filterBody) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}
	must, err := conditionsFromBody(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromBody(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromBody(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, domain.NewValidation("filters", err.Error())
	}
	return expr, nil
}

func conditionsFromBody(cs []conditionBody) ([]filter.Condition, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromBody(c)
		if err != nil {
			return nil, domain.NewValidation("filters", err.Error())
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromBody(c conditionBody) (filter.Condition, error) {
	switch {
	case c.Match != nil && c.Range != nil:
		return filter.Condition{}, fmt.Errorf("condition for %q must have match or range, not both", c.Key)
	case c.Match != nil:
		return filter.NewMatch(c.Key, *c.Match)
	case c.Range != nil:
		rf, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
		if err != nil {
			return filter.Condition{}, err
		}
		return filter.NewRange(c.Key, rf)
	}
	return filter.Condition{}, fmt.Errorf("condition for %q must have match or range", c.Key)
}

// queryParam binds an optional form-style query parameter into dest.
func queryParam(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return domain.NewValidation(name, "invalid format")
	}
	return nil
}

// pathParam binds a required simple-style path parameter into dest.
func pathParam(r *http.Request, name string, dest any) error {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return domain.NewValidation(name, "invalid format")
	}
	return nil
}
