package rewrite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
)

// BudgetKeyPrefix namespaces persisted budget counters.
const BudgetKeyPrefix = "assetsearch:rewrite:budget:"

// BudgetAction defines behavior once a token budget is spent.
type BudgetAction string

const (
	// BudgetActionWarn logs and lets the rewrite through.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionSkip skips rewriting; searches run on the raw query.
	BudgetActionSkip BudgetAction = "skip"
)

// BudgetStore persists counters across restarts and replicas.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Budget tracks rewrite tokens per UTC day and month. Allow is answered from
// memory; Record updates memory and then writes through to the store.
type Budget struct {
	provider     string
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	store        BudgetStore
	logger       *zap.Logger
	now          func() time.Time

	mu          sync.Mutex
	day         time.Time
	month       time.Time
	dailyUsed   int64
	monthlyUsed int64
}

// NewBudget creates a tracker. A zero limit is unlimited.
func NewBudget(provider string, dailyLimit, monthlyLimit int64, action BudgetAction, logger *zap.Logger) *Budget {
	b := &Budget{
		provider:     provider,
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		logger:       logger,
		now:          time.Now,
	}
	b.day, b.month = periods(b.now())
	return b
}

// WithStore attaches persistence and loads the current period's counters.
// A failed load starts the counters at zero.
func (b *Budget) WithStore(ctx context.Context, store BudgetStore) *Budget {
	b.store = store

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	if v, err := store.Get(ctx, b.dailyKey(b.day)); err == nil {
		b.dailyUsed = v
	} else {
		b.logger.Warn("Failed to load daily rewrite budget", zap.Error(err))
	}
	if v, err := store.Get(ctx, b.monthlyKey(b.month)); err == nil {
		b.monthlyUsed = v
	} else {
		b.logger.Warn("Failed to load monthly rewrite budget", zap.Error(err))
	}
	b.logger.Info("Rewrite budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

// Allow reports whether a rewrite may run. With BudgetActionSkip a spent
// budget yields domain.ErrRewriteQuotaExceeded.
func (b *Budget) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	spent := (b.dailyLimit > 0 && b.dailyUsed >= b.dailyLimit) ||
		(b.monthlyLimit > 0 && b.monthlyUsed >= b.monthlyLimit)
	if !spent {
		return nil
	}
	if b.action == BudgetActionSkip {
		return domain.ErrRewriteQuotaExceeded
	}
	b.logger.Warn("Rewrite token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.dailyLimit),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.monthlyLimit),
	)
	return nil
}

// Record adds consumed tokens.
func (b *Budget) Record(tokens int64) {
	if tokens <= 0 {
		return
	}
	b.mu.Lock()
	b.rollLocked()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	dailyKey, monthlyKey := b.dailyKey(b.day), b.monthlyKey(b.month)
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}
	// Detached from the request so a cancelled search still gets billed.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily rewrite budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly rewrite budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// Remaining returns tokens left today and this month; -1 means unlimited.
func (b *Budget) Remaining() (daily, monthly int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return remaining(b.dailyLimit, b.dailyUsed), remaining(b.monthlyLimit, b.monthlyUsed)
}

// Used returns tokens consumed today and this month.
func (b *Budget) Used() (daily, monthly int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.dailyUsed, b.monthlyUsed
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// rollLocked zeroes counters whose period has ended.
func (b *Budget) rollLocked() {
	day, month := periods(b.now())
	if day.After(b.day) {
		b.day, b.dailyUsed = day, 0
	}
	if month.After(b.month) {
		b.month, b.monthlyUsed = month, 0
	}
}

func (b *Budget) dailyKey(day time.Time) string {
	return fmt.Sprintf("%s%s:daily:%s", BudgetKeyPrefix, b.provider, day.Format("2006-01-02"))
}

func (b *Budget) monthlyKey(month time.Time) string {
	return fmt.Sprintf("%s%s:monthly:%s", BudgetKeyPrefix, b.provider, month.Format("2006-01"))
}

func periods(t time.Time) (day, month time.Time) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
