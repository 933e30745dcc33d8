// Package experiment persists experiment definitions, assignments, outcomes
// and per-user ranking weights in Redis.
package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
)

const (
	registryKey   = "assetsearch:experiments"
	keyPrefix     = "assetsearch:experiment:"
	weightsPrefix = "assetsearch:weights:user:"
)

type store interface {
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	RPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo stores experiments. Definitions live in one registry hash keyed by id.
type Repo struct {
	store store
}

// New creates an experiment repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func assignmentsKey(id string) string { return keyPrefix + id + ":assignments" }
func outcomesKey(id string) string    { return keyPrefix + id + ":outcomes" }
func forcedKey(id string) string      { return keyPrefix + id + ":forced" }

// Create stores a new experiment. An existing id yields domain.ErrAlreadyExists.
func (r *Repo) Create(ctx context.Context, e domexp.Experiment) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal experiment: %w", err)
	}
	ok, err := r.store.HSetNX(ctx, registryKey, e.ID, string(b))
	if err != nil {
		return fmt.Errorf("create experiment %s: %w", e.ID, err)
	}
	if !ok {
		return fmt.Errorf("experiment %s: %w", e.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// Save overwrites an experiment definition.
func (r *Repo) Save(ctx context.Context, e domexp.Experiment) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal experiment: %w", err)
	}
	if err := r.store.HSet(ctx, registryKey, map[string]string{e.ID: string(b)}); err != nil {
		return fmt.Errorf("save experiment %s: %w", e.ID, err)
	}
	return nil
}

// Get loads one experiment.
func (r *Repo) Get(ctx context.Context, id string) (domexp.Experiment, error) {
	raw, err := r.store.HGet(ctx, registryKey, id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domexp.Experiment{}, fmt.Errorf("experiment %s: %w", id, domain.ErrExperimentNotFound)
		}
		return domexp.Experiment{}, fmt.Errorf("get experiment %s: %w", id, err)
	}
	var e domexp.Experiment
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return domexp.Experiment{}, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return e, nil
}

// List returns every experiment, newest first.
func (r *Repo) List(ctx context.Context) ([]domexp.Experiment, error) {
	all, err := r.store.HGetAll(ctx, registryKey)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	out := make([]domexp.Experiment, 0, len(all))
	for id, raw := range all {
		var e domexp.Experiment
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode experiment %s: %w", id, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordAssignment stores the first variant served to a user and returns the
// variant now on record.
func (r *Repo) RecordAssignment(ctx context.Context, a domexp.Assignment) (string, error) {
	key := assignmentsKey(a.ExperimentID)
	ok, err := r.store.HSetNX(ctx, key, a.UserID, a.Variant)
	if err != nil {
		return "", fmt.Errorf("record assignment: %w", err)
	}
	if ok {
		return a.Variant, nil
	}
	v, err := r.store.HGet(ctx, key, a.UserID)
	if err != nil {
		return "", fmt.Errorf("read assignment: %w", err)
	}
	return v, nil
}

// RecordForced stores a variant served by override. The latest override wins
// and is kept apart from the hashed assignments counted in reports.
func (r *Repo) RecordForced(ctx context.Context, a domexp.Assignment) error {
	if err := r.store.HSet(ctx, forcedKey(a.ExperimentID), map[string]string{a.UserID: a.Variant}); err != nil {
		return fmt.Errorf("record forced assignment: %w", err)
	}
	return nil
}

// AssignedVariant returns the variant a user was last served: a forced
// variant when one is on record, else the hashed assignment, else "".
func (r *Repo) AssignedVariant(ctx context.Context, expID, userID string) (string, error) {
	for _, key := range []string{forcedKey(expID), assignmentsKey(expID)} {
		v, err := r.store.HGet(ctx, key, userID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, db.ErrKeyNotFound) {
			return "", fmt.Errorf("read assignment: %w", err)
		}
	}
	return "", nil
}

// AssignmentCounts returns the number of users recorded per variant.
func (r *Repo) AssignmentCounts(ctx context.Context, expID string) (map[string]int, error) {
	all, err := r.store.HGetAll(ctx, assignmentsKey(expID))
	if err != nil {
		return nil, fmt.Errorf("read assignments: %w", err)
	}
	counts := make(map[string]int)
	for _, v := range all {
		counts[v]++
	}
	return counts, nil
}

// AppendOutcome adds an outcome to the experiment's log.
func (r *Repo) AppendOutcome(ctx context.Context, o domexp.Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := r.store.RPush(ctx, outcomesKey(o.ExperimentID), b); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// Outcomes returns the full outcome log in append order.
func (r *Repo) Outcomes(ctx context.Context, expID string) ([]domexp.Outcome, error) {
	raw, err := r.store.LRange(ctx, outcomesKey(expID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	out := make([]domexp.Outcome, 0, len(raw))
	for _, b := range raw {
		var o domexp.Outcome
		if err := json.Unmarshal(b, &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

// UserWeights returns a user's saved weights and whether any exist.
func (r *Repo) UserWeights(ctx context.Context, userID string) (ranking.Weights, bool, error) {
	b, err := r.store.Get(ctx, weightsPrefix+userID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ranking.Weights{}, false, nil
		}
		return ranking.Weights{}, false, fmt.Errorf("get user weights: %w", err)
	}
	var w ranking.Weights
	if err := json.Unmarshal(b, &w); err != nil {
		return ranking.Weights{}, false, fmt.Errorf("decode user weights: %w", err)
	}
	return w, true, nil
}

// SetUserWeights saves a user's default weights.
func (r *Repo) SetUserWeights(ctx context.Context, userID string, w ranking.Weights) error {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal user weights: %w", err)
	}
	if err := r.store.Set(ctx, weightsPrefix+userID, b); err != nil {
		return fmt.Errorf("set user weights: %w", err)
	}
	return nil
}
