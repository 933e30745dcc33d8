package chi

import (
	"context"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	domexp "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/experiment"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/request"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/result"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/suggestion"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	adminuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/admin"
	expuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
	healthuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/health"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
	rewriteuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/rewrite"
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
)

// Searcher answers the three query modes.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Page, error)
	LiveSearch(ctx context.Context, req *request.Request) (result.Page, error)
	IntelligentSearch(ctx context.Context, req *request.Request, opts searchuc.IntelligentOptions) (searchuc.Intelligent, error)
}

// Suggester answers type-ahead requests.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, size int) ([]suggestion.Suggestion, error)
}

// Scheduler accepts index sync work.
type Scheduler interface {
	ScheduleCreate(id string, priority int) (synctask.Task, bool, error)
	ScheduleUpdate(id string, priority int) (synctask.Task, bool, error)
	ScheduleDelete(id string, priority int) (synctask.Task, bool, error)
	ScheduleBulk(ids []string, fullSync bool, priority int) (synctask.Task, bool, error)
}

// Experiments manages A/B tests and per-user weights.
type Experiments interface {
	Create(ctx context.Context, in expuc.CreateInput) (domexp.Experiment, error)
	List(ctx context.Context) ([]domexp.Experiment, error)
	Get(ctx context.Context, id string) (domexp.Experiment, error)
	Start(ctx context.Context, id string) (domexp.Experiment, error)
	Stop(ctx context.Context, id string) (domexp.Experiment, error)
	AssignVariant(ctx context.Context, expID, userID, force string) (domexp.Assignment, error)
	RecordOutcome(ctx context.Context, expID, userID, sessionID string, values map[string]float64) (domexp.Outcome, error)
	Report(ctx context.Context, expID string) (domexp.Report, error)
	SetUserWeights(ctx context.Context, userID string, w ranking.Weights) error
}

// Admin exposes index and queue maintenance.
type Admin interface {
	InitializeIndex(ctx context.Context, recreate bool) (adminuc.InitResult, error)
	RefreshIndex() (synctask.Task, error)
	OptimizeIndex(ctx context.Context) (int, error)
	Stats(ctx context.Context) (engine.Stats, error)
	QueueStatus() indexsync.Status
	DeadLetters(ctx context.Context, limit int) ([]synctask.DeadLetter, error)
	Resync(ids []string, fullSync bool) (synctask.Task, error)
	ArchiveDeadLetters(ctx context.Context) (adminuc.ArchiveResult, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// RewriteUsage reports the query rewriter's token budget.
type RewriteUsage interface {
	Usage(p rewriteuc.Period) (rewriteuc.Usage, error)
}
