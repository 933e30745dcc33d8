// Package experiment runs A/B tests over ranking weights: lifecycle,
// deterministic assignment, outcome collection and reporting.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// Weight sources reported by ResolveWeights.
const (
	SourceCustom     = "custom"
	SourceExperiment = "experiment"
	SourceUser       = "user"
	SourceDefault    = "default"
)

// CreateInput describes a new experiment. An empty ID is generated.
type CreateInput struct {
	ID          string
	Name        string
	Description string
	Variants    []domexp.Variant
	ExpiresAt   time.Time
}

// Resolution is the weight vector chosen for a request and where it came from.
type Resolution struct {
	Weights    ranking.Weights `json:"weights"`
	Source     string          `json:"source"`
	Experiment string          `json:"experiment,omitempty"`
	Variant    string          `json:"variant,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager coordinates experiment lifecycle and assignment.
type Manager struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	// mu serializes read-modify-write lifecycle transitions.
	mu sync.Mutex
}

// New creates a Manager.
func New(repo Repository, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{repo: repo, logger: logger, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create validates and stores a new experiment in the created state.
func (m *Manager) Create(ctx context.Context, in CreateInput) (domexp.Experiment, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	e, err := domexp.New(id, in.Name, in.Description, in.Variants, in.ExpiresAt, m.now().UTC())
	if err != nil {
		return domexp.Experiment{}, err
	}
	if err := m.repo.Create(ctx, e); err != nil {
		return domexp.Experiment{}, fmt.Errorf("create experiment: %w", err)
	}
	m.logger.Info("Experiment created", zap.String("experiment", e.ID), zap.Int("variants", len(e.Variants)))
	return e, nil
}

// Get returns an experiment, stopping it first if it has expired.
func (m *Manager) Get(ctx context.Context, id string) (domexp.Experiment, error) {
	e, err := m.repo.Get(ctx, id)
	if err != nil {
		return domexp.Experiment{}, err
	}
	if e.Expired(m.now()) {
		return m.expire(ctx, id)
	}
	return e, nil
}

// List returns every experiment, newest first.
func (m *Manager) List(ctx context.Context) ([]domexp.Experiment, error) {
	list, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for i, e := range list {
		if e.Expired(now) {
			if stopped, err := m.expire(ctx, e.ID); err == nil {
				list[i] = stopped
			}
		}
	}
	return list, nil
}

func (m *Manager) expire(ctx context.Context, id string) (domexp.Experiment, error) {
	e, err := m.transition(ctx, id, func(e domexp.Experiment, now time.Time) (domexp.Experiment, error) {
		if !e.Expired(now) {
			return e, nil
		}
		return e.Stop(now)
	})
	if err == nil {
		m.logger.Info("Experiment expired", zap.String("experiment", id))
	}
	return e, err
}

// Start activates a created experiment.
func (m *Manager) Start(ctx context.Context, id string) (domexp.Experiment, error) {
	return m.transition(ctx, id, func(e domexp.Experiment, now time.Time) (domexp.Experiment, error) {
		return e.Start(now)
	})
}

// Stop ends an experiment. Its outcomes remain readable.
func (m *Manager) Stop(ctx context.Context, id string) (domexp.Experiment, error) {
	return m.transition(ctx, id, func(e domexp.Experiment, now time.Time) (domexp.Experiment, error) {
		return e.Stop(now)
	})
}

func (m *Manager) transition(
	ctx context.Context, id string,
	fn func(domexp.Experiment, time.Time) (domexp.Experiment, error),
) (domexp.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.repo.Get(ctx, id)
	if err != nil {
		return domexp.Experiment{}, err
	}
	next, err := fn(e, m.now().UTC())
	if err != nil {
		return domexp.Experiment{}, err
	}
	if next.Status == e.Status {
		return next, nil
	}
	if err := m.repo.Save(ctx, next); err != nil {
		return domexp.Experiment{}, fmt.Errorf("save experiment: %w", err)
	}
	m.logger.Info("Experiment status changed",
		zap.String("experiment", id),
		zap.String("from", string(e.Status)),
		zap.String("to", string(next.Status)),
	)
	return next, nil
}

// AssignVariant returns the user's variant. The bucket is a pure function of
// experiment and user id; force selects a named variant instead and is not
// recorded. Only active, unexpired experiments accept assignments.
func (m *Manager) AssignVariant(ctx context.Context, expID, userID, force string) (domexp.Assignment, error) {
	a, _, err := m.assign(ctx, expID, userID, force)
	return a, err
}

func (m *Manager) assign(ctx context.Context, expID, userID, force string) (domexp.Assignment, domexp.Variant, error) {
	if userID == "" {
		return domexp.Assignment{}, domexp.Variant{}, domain.NewValidation("userId", "is required")
	}
	e, err := m.Get(ctx, expID)
	if err != nil {
		return domexp.Assignment{}, domexp.Variant{}, err
	}
	if !e.AcceptsAssignments(m.now()) {
		return domexp.Assignment{}, domexp.Variant{},
			fmt.Errorf("experiment %s is %s: %w", expID, e.Status, domain.ErrExperimentStopped)
	}

	a := domexp.Assignment{ExperimentID: e.ID, UserID: userID}
	if force != "" {
		v, ok := e.Variant(force)
		if !ok {
			return domexp.Assignment{}, domexp.Variant{}, domain.NewValidation("force", "unknown variant "+force)
		}
		a.Variant, a.Forced = v.Name, true
		if err := m.repo.RecordForced(ctx, a); err != nil {
			m.logger.Warn("Failed to record forced assignment",
				zap.String("experiment", e.ID), zap.String("user", userID), zap.Error(err))
		}
		return a, v, nil
	}

	v := e.Bucket(userID)
	a.Variant = v.Name
	if _, err := m.repo.RecordAssignment(ctx, a); err != nil {
		m.logger.Warn("Failed to record assignment",
			zap.String("experiment", e.ID), zap.String("user", userID), zap.Error(err))
	}
	metrics.ExperimentAssignmentsTotal.WithLabelValues(e.ID, a.Variant).Inc()
	return a, v, nil
}

// RecordOutcome appends observed metrics for a user. Active and stopped
// experiments accept outcomes.
func (m *Manager) RecordOutcome(
	ctx context.Context, expID, userID, sessionID string, values map[string]float64,
) (domexp.Outcome, error) {
	if userID == "" {
		return domexp.Outcome{}, domain.NewValidation("userId", "is required")
	}
	if len(values) == 0 {
		return domexp.Outcome{}, domain.NewValidation("metrics", "at least one metric is required")
	}
	for k, v := range values {
		if k == "" || math.IsNaN(v) || math.IsInf(v, 0) {
			return domexp.Outcome{}, domain.NewValidation("metrics", fmt.Sprintf("invalid metric %q", k))
		}
	}

	e, err := m.Get(ctx, expID)
	if err != nil {
		return domexp.Outcome{}, err
	}
	if e.Status == domexp.StatusCreated {
		return domexp.Outcome{}, fmt.Errorf("experiment %s not started: %w", expID, domain.ErrExperimentStopped)
	}

	variant, err := m.repo.AssignedVariant(ctx, expID, userID)
	if err != nil {
		return domexp.Outcome{}, err
	}
	if variant == "" {
		variant = e.Bucket(userID).Name
	}
	o := domexp.Outcome{
		ExperimentID: expID,
		UserID:       userID,
		SessionID:    sessionID,
		Variant:      variant,
		Metrics:      values,
		RecordedAt:   m.now().UTC(),
	}
	if err := m.repo.AppendOutcome(ctx, o); err != nil {
		return domexp.Outcome{}, fmt.Errorf("record outcome: %w", err)
	}
	return o, nil
}

// Report computes per-variant statistics from the stored outcomes.
func (m *Manager) Report(ctx context.Context, expID string) (domexp.Report, error) {
	e, err := m.Get(ctx, expID)
	if err != nil {
		return domexp.Report{}, err
	}
	counts, err := m.repo.AssignmentCounts(ctx, expID)
	if err != nil {
		return domexp.Report{}, err
	}
	outcomes, err := m.repo.Outcomes(ctx, expID)
	if err != nil {
		return domexp.Report{}, err
	}
	return domexp.BuildReport(e, counts, outcomes), nil
}

// ResolveWeights picks the ranking weights for a request: custom weights
// first, then the user's experiment variant, then the user's saved default,
// then the system default.
func (m *Manager) ResolveWeights(ctx context.Context, userID, expID string, custom *ranking.Weights) (Resolution, error) {
	if custom != nil {
		if err := custom.Validate(); err != nil {
			return Resolution{}, err
		}
		return Resolution{Weights: *custom, Source: SourceCustom}, nil
	}

	if expID != "" && userID != "" {
		_, v, err := m.assign(ctx, expID, userID, "")
		switch {
		case err == nil:
			return Resolution{Weights: v.Weights, Source: SourceExperiment, Experiment: expID, Variant: v.Name}, nil
		case errors.Is(err, domain.ErrExperimentNotFound), errors.Is(err, domain.ErrExperimentStopped):
			m.logger.Debug("Experiment not applicable", zap.String("experiment", expID), zap.Error(err))
		default:
			m.logger.Warn("Experiment assignment failed", zap.String("experiment", expID), zap.Error(err))
		}
	}

	if userID != "" {
		w, ok, err := m.repo.UserWeights(ctx, userID)
		if err != nil {
			m.logger.Warn("Failed to load user weights", zap.String("user", userID), zap.Error(err))
		} else if ok {
			return Resolution{Weights: w, Source: SourceUser}, nil
		}
	}
	return Resolution{Weights: ranking.DefaultWeights(), Source: SourceDefault}, nil
}

// SetUserWeights saves a user's default weights.
func (m *Manager) SetUserWeights(ctx context.Context, userID string, w ranking.Weights) error {
	if userID == "" {
		return domain.NewValidation("userId", "is required")
	}
	if err := w.Validate(); err != nil {
		return err
	}
	return m.repo.SetUserWeights(ctx, userID, w)
}
