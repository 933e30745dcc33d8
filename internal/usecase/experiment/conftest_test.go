package experiment

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
)

type memRepo struct {
	mu          sync.Mutex
	experiments map[string]domexp.Experiment
	assignments map[string]map[string]string
	forced      map[string]map[string]string
	outcomes    map[string][]domexp.Outcome
	weights     map[string]ranking.Weights

	recordErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		experiments: map[string]domexp.Experiment{},
		assignments: map[string]map[string]string{},
		forced:      map[string]map[string]string{},
		outcomes:    map[string][]domexp.Outcome{},
		weights:     map[string]ranking.Weights{},
	}
}

func (r *memRepo) Create(_ context.Context, e domexp.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[e.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.experiments[e.ID] = e
	return nil
}

func (r *memRepo) Save(_ context.Context, e domexp.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[e.ID] = e
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (domexp.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[id]
	if !ok {
		return domexp.Experiment{}, domain.ErrExperimentNotFound
	}
	return e, nil
}

func (r *memRepo) List(context.Context) ([]domexp.Experiment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domexp.Experiment, 0, len(r.experiments))
	for _, e := range r.experiments {
		out = append(out, e)
	}
	return out, nil
}

func (r *memRepo) RecordAssignment(_ context.Context, a domexp.Assignment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return "", r.recordErr
	}
	h, ok := r.assignments[a.ExperimentID]
	if !ok {
		h = map[string]string{}
		r.assignments[a.ExperimentID] = h
	}
	if v, ok := h[a.UserID]; ok {
		return v, nil
	}
	h[a.UserID] = a.Variant
	return a.Variant, nil
}

func (r *memRepo) RecordForced(_ context.Context, a domexp.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	h, ok := r.forced[a.ExperimentID]
	if !ok {
		h = map[string]string{}
		r.forced[a.ExperimentID] = h
	}
	h[a.UserID] = a.Variant
	return nil
}

func (r *memRepo) AssignedVariant(_ context.Context, expID, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.forced[expID][userID]; ok {
		return v, nil
	}
	return r.assignments[expID][userID], nil
}

func (r *memRepo) AssignmentCounts(_ context.Context, expID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, v := range r.assignments[expID] {
		out[v]++
	}
	return out, nil
}

func (r *memRepo) AppendOutcome(_ context.Context, o domexp.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o.ExperimentID] = append(r.outcomes[o.ExperimentID], o)
	return nil
}

func (r *memRepo) Outcomes(_ context.Context, expID string) ([]domexp.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domexp.Outcome(nil), r.outcomes[expID]...), nil
}

func (r *memRepo) UserWeights(_ context.Context, userID string) (ranking.Weights, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.weights[userID]
	return w, ok, nil
}

func (r *memRepo) SetUserWeights(_ context.Context, userID string, w ranking.Weights) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weights[userID] = w
	return nil
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *memRepo, *testClock) {
	t.Helper()
	repo := newMemRepo()
	clock := &testClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	return New(repo, zap.NewNop(), WithClock(clock.Now)), repo, clock
}

func twoArms() []domexp.Variant {
	return []domexp.Variant{
		{Name: "control", Weights: ranking.DefaultWeights(), Traffic: 50},
		{Name: "recency", Weights: ranking.Weights{Relevance: 0.5, Recency: 0.5}, Traffic: 50},
	}
}
