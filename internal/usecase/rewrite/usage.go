package rewrite

import (
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
)

// Period is a budget accounting window.
type Period string

// Accounting windows.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Usage is the rewrite token account for one period. Remaining is -1 when
// the period is unlimited.
type Usage struct {
	Provider    string    `json:"provider"`
	Period      Period    `json:"period"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	Limit       int64     `json:"limit"`
	Used        int64     `json:"used"`
	Remaining   int64     `json:"remaining"`
	Exhausted   bool      `json:"exhausted"`
}

// Usage reports token consumption for the current day or month.
func (b *Budget) Usage(p Period) (Usage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	u := Usage{Provider: b.provider, Period: p}
	switch p {
	case PeriodDay:
		u.PeriodStart, u.PeriodEnd = b.day, b.day.AddDate(0, 0, 1)
		u.Limit, u.Used = b.dailyLimit, b.dailyUsed
	case PeriodMonth:
		u.PeriodStart, u.PeriodEnd = b.month, b.month.AddDate(0, 1, 0)
		u.Limit, u.Used = b.monthlyLimit, b.monthlyUsed
	default:
		return Usage{}, domain.NewValidation("period", `must be "day" or "month"`)
	}
	u.Remaining = remaining(u.Limit, u.Used)
	u.Exhausted = u.Limit > 0 && u.Remaining == 0
	return u, nil
}
