package experiment

import (
	"context"

	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
)

// Repository persists experiments and their observations.
type Repository interface {
	Create(ctx context.Context, e domexp.Experiment) error
	Save(ctx context.Context, e domexp.Experiment) error
	Get(ctx context.Context, id string) (domexp.Experiment, error)
	List(ctx context.Context) ([]domexp.Experiment, error)

	RecordAssignment(ctx context.Context, a domexp.Assignment) (string, error)
	RecordForced(ctx context.Context, a domexp.Assignment) error
	AssignedVariant(ctx context.Context, expID, userID string) (string, error)
	AssignmentCounts(ctx context.Context, expID string) (map[string]int, error)

	AppendOutcome(ctx context.Context, o domexp.Outcome) error
	Outcomes(ctx context.Context, expID string) ([]domexp.Outcome, error)

	UserWeights(ctx context.Context, userID string) (ranking.Weights, bool, error)
	SetUserWeights(ctx context.Context, userID string, w ranking.Weights) error
}
