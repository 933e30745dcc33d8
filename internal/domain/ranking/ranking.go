// Package ranking holds the value types of the scoring pipeline.
package ranking

import (
	"fmt"
	"math"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
)

// Weights is a named, versioned weight vector over the ranking signals.
type Weights struct {
	Name            string  `json:"name,omitempty"`
	Version         int     `json:"version,omitempty"`
	Relevance       float64 `json:"relevance"`
	Popularity      float64 `json:"popularity"`
	Recency         float64 `json:"recency"`
	Personalization float64 `json:"personalization"`
}

// DefaultWeights returns the system default vector.
func DefaultWeights() Weights {
	return Weights{
		Name: "default", Version: 1,
		Relevance: 0.55, Popularity: 0.2, Recency: 0.15, Personalization: 0.1,
	}
}

func (w Weights) sum() float64 {
	return w.Relevance + w.Popularity + w.Recency + w.Personalization
}

// Validate checks that every weight is finite and non-negative and that at least one is positive.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"relevance": w.Relevance, "popularity": w.Popularity,
		"recency": w.Recency, "personalization": w.Personalization,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewValidation("weights."+name, fmt.Sprintf("must be a non-negative number, got %v", v))
		}
	}
	if w.sum() <= 0 {
		return domain.NewValidation("weights", "at least one weight must be positive")
	}
	return nil
}

// Normalized rescales the weights to sum to 1. Invalid vectors yield the defaults.
func (w Weights) Normalized() Weights {
	if w.Validate() != nil {
		return DefaultWeights()
	}
	s := w.sum()
	w.Relevance /= s
	w.Popularity /= s
	w.Recency /= s
	w.Personalization /= s
	return w
}

// Signals are the per-document inputs to the final score, each in [0, 1].
type Signals struct {
	Relevance       float64 `json:"relevance"`
	Popularity      float64 `json:"popularity"`
	Recency         float64 `json:"recency"`
	Personalization float64 `json:"personalization"`
}

// Combine returns the weighted sum of s under normalized w.
func (s Signals) Combine(w Weights) float64 {
	n := w.Normalized()
	return n.Relevance*s.Relevance + n.Popularity*s.Popularity +
		n.Recency*s.Recency + n.Personalization*s.Personalization
}

// Personalization carries a user's historical interaction counts.
type Personalization struct {
	CategoryAffinity map[string]float64 `json:"categories,omitempty"`
	TagAffinity      map[string]float64 `json:"tags,omitempty"`
}

// IsEmpty reports whether no affinity data is present.
func (p Personalization) IsEmpty() bool {
	return len(p.CategoryAffinity) == 0 && len(p.TagAffinity) == 0
}
