package rewrite

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	domrewrite "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/rewrite"
)

type mockCompleter struct {
	result domrewrite.Result
	err    error
	calls  int
}

func (m *mockCompleter) Complete(_ context.Context, _ string) (domrewrite.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockBudgetStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockBudgetStore() *mockBudgetStore {
	return &mockBudgetStore{data: make(map[string]int64)}
}

func (m *mockBudgetStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockBudgetStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func (m *mockBudgetStore) value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBudget(daily, monthly int64, action BudgetAction, c *clock) *Budget {
	b := NewBudget("test", daily, monthly, action, zap.NewNop())
	if c != nil {
		b.now = c.now
		b.day, b.month = periods(c.t)
	}
	return b
}
