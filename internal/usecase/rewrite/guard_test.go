package rewrite

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	domrewrite "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/rewrite"
)

func TestGuard_RecordsTokens(t *testing.T) {
	inner := &mockCompleter{result: domrewrite.Result{Query: "sales revenue", TotalTokens: 30}}
	b := newTestBudget(100, 0, BudgetActionSkip, nil)
	g := NewGuard(inner, "test", "m", b, zap.NewNop())

	got, err := g.Rewrite(context.Background(), "salse revnue")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "sales revenue" {
		t.Errorf("got %q", got)
	}
	if d, _ := b.Used(); d != 30 {
		t.Errorf("daily used = %d, want 30", d)
	}
}

func TestGuard_SpentBudgetSkipsProvider(t *testing.T) {
	inner := &mockCompleter{result: domrewrite.Result{Query: "x", TotalTokens: 60}}
	b := newTestBudget(100, 0, BudgetActionSkip, nil)
	g := NewGuard(inner, "test", "m", b, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := g.Rewrite(context.Background(), "q"); err != nil {
			t.Fatalf("Rewrite: %v", err)
		}
	}
	_, err := g.Rewrite(context.Background(), "q")
	if !errors.Is(err, domain.ErrRewriteQuotaExceeded) {
		t.Fatalf("got %v, want ErrRewriteQuotaExceeded", err)
	}
	if inner.calls != 2 {
		t.Errorf("provider calls = %d, want 2", inner.calls)
	}
}

func TestGuard_ProviderError(t *testing.T) {
	inner := &mockCompleter{err: domain.NewTransient("rewrite query", errors.New("503"))}
	g := NewGuard(inner, "test", "m", nil, zap.NewNop())

	if _, err := g.Rewrite(context.Background(), "q"); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("got %v", err)
	}
}
