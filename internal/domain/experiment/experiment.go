// Package experiment models A/B tests over ranking weight vectors.
package experiment

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
)

// Status is the lifecycle stage of an experiment.
type Status string

// Lifecycle: created -> active -> stopped.
const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

// Experiment limits.
const (
	// MaxTraffic bounds one variant's relative share.
	MaxTraffic = 10_000
	// MaxVariants bounds the arms of one experiment.
	MaxVariants = 100
)

// Variant is one arm of an experiment. Traffic is a relative share.
type Variant struct {
	Name    string          `json:"name"`
	Weights ranking.Weights `json:"weights"`
	Traffic int             `json:"traffic"`
}

// Experiment is an A/B test definition.
type Experiment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Variants    []Variant `json:"variants"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	StoppedAt   time.Time `json:"stoppedAt,omitempty"`
	// ExpiresAt zero means the experiment runs until stopped.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// New validates and creates an experiment in the created state.
func New(id, name, description string, variants []Variant, expiresAt, now time.Time) (Experiment, error) {
	if id == "" {
		return Experiment{}, domain.NewValidation("id", "is required")
	}
	if name == "" {
		return Experiment{}, domain.NewValidation("name", "is required")
	}
	if len(variants) == 0 {
		return Experiment{}, domain.NewValidation("variants", "at least one variant is required")
	}
	if len(variants) > MaxVariants {
		return Experiment{}, domain.NewValidation("variants", fmt.Sprintf("at most %d variants", MaxVariants))
	}
	seen := make(map[string]bool, len(variants))
	for i, v := range variants {
		field := fmt.Sprintf("variants[%d]", i)
		if v.Name == "" {
			return Experiment{}, domain.NewValidation(field+".name", "is required")
		}
		if seen[v.Name] {
			return Experiment{}, domain.NewValidation(field+".name", "duplicate variant "+v.Name)
		}
		seen[v.Name] = true
		if v.Traffic <= 0 {
			return Experiment{}, domain.NewValidation(field+".traffic", "must be positive")
		}
		if v.Traffic > MaxTraffic {
			return Experiment{}, domain.NewValidation(field+".traffic", fmt.Sprintf("must be at most %d", MaxTraffic))
		}
		if err := v.Weights.Validate(); err != nil {
			return Experiment{}, err
		}
	}
	if !expiresAt.IsZero() && !expiresAt.After(now) {
		return Experiment{}, domain.NewValidation("expiresAt", "must be in the future")
	}
	vs := make([]Variant, len(variants))
	copy(vs, variants)
	return Experiment{
		ID: id, Name: name, Description: description, Variants: vs,
		Status: StatusCreated, CreatedAt: now, ExpiresAt: expiresAt,
	}, nil
}

// Start moves a created experiment to active.
func (e Experiment) Start(now time.Time) (Experiment, error) {
	if e.Status != StatusCreated {
		return e, fmt.Errorf("%w: cannot start %s experiment", domain.ErrInvalidTransition, e.Status)
	}
	e.Status = StatusActive
	e.StartedAt = now
	return e, nil
}

// Stop moves an active (or never started) experiment to stopped.
func (e Experiment) Stop(now time.Time) (Experiment, error) {
	if e.Status == StatusStopped {
		return e, fmt.Errorf("%w: experiment already stopped", domain.ErrInvalidTransition)
	}
	e.Status = StatusStopped
	e.StoppedAt = now
	return e, nil
}

// Expired reports whether an active experiment has passed its expiry.
func (e Experiment) Expired(now time.Time) bool {
	return e.Status == StatusActive && !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// AcceptsAssignments reports whether new users may be bucketed.
func (e Experiment) AcceptsAssignments(now time.Time) bool {
	return e.Status == StatusActive && !e.Expired(now)
}

// Variant returns the named variant.
func (e Experiment) Variant(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Control is the first variant; reports compare every other variant against it.
func (e Experiment) Control() Variant { return e.Variants[0] }

// Bucket deterministically maps a user to a variant. The same experiment and
// user always land in the same variant regardless of process or call order.
func (e Experiment) Bucket(userID string) Variant {
	total := 0
	for _, v := range e.Variants {
		if v.Traffic > 0 {
			total += v.Traffic
		}
	}
	if total <= 0 {
		return e.Control()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(userID))
	slot := int(h.Sum64() % uint64(total))
	for _, v := range e.Variants {
		if slot < v.Traffic {
			return v
		}
		slot -= v.Traffic
	}
	return e.Variants[len(e.Variants)-1]
}

// Assignment records the variant a user was served.
type Assignment struct {
	ExperimentID string `json:"experimentId"`
	UserID       string `json:"userId"`
	Variant      string `json:"variant"`
	Forced       bool   `json:"forced,omitempty"`
}

// Outcome is an observed metric set attached to a variant after the fact.
type Outcome struct {
	ExperimentID string             `json:"experimentId"`
	UserID       string             `json:"userId"`
	SessionID    string             `json:"sessionId,omitempty"`
	Variant      string             `json:"variant"`
	Metrics      map[string]float64 `json:"metrics"`
	RecordedAt   time.Time          `json:"recordedAt"`
}
