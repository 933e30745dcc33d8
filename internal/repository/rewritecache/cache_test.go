package rewritecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rewrite_cache_test_total"}, []string{"result"})
}

func TestRewrite_MissThenHit(t *testing.T) {
	inner := &mockRewriter{out: "sales revenue"}
	ms := newMockKVStore()
	total := newCounter()
	c := New(inner, ms, time.Hour, total, zap.NewNop())

	for _, q := range []string{"Salse Revnue", "  salse revnue "} {
		got, err := c.Rewrite(context.Background(), q)
		if err != nil {
			t.Fatalf("Rewrite(%q): %v", q, err)
		}
		if got != "sales revenue" {
			t.Errorf("Rewrite(%q) = %q", q, got)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if ms.ttls[cacheKey("salse revnue")] != time.Hour {
		t.Errorf("ttl = %v", ms.ttls)
	}
	if testutil.ToFloat64(total.WithLabelValues("hit")) != 1 || testutil.ToFloat64(total.WithLabelValues("miss")) != 1 {
		t.Error("unexpected hit/miss counts")
	}
}

func TestRewrite_InnerErrorNotCached(t *testing.T) {
	inner := &mockRewriter{err: errors.New("quota")}
	ms := newMockKVStore()
	c := New(inner, ms, time.Hour, nil, zap.NewNop())

	if _, err := c.Rewrite(context.Background(), "q"); err == nil {
		t.Fatal("expected error")
	}
	if len(ms.data) != 0 {
		t.Errorf("error must not be cached: %v", ms.data)
	}
}

func TestRewrite_StoreFailuresFallThrough(t *testing.T) {
	inner := &mockRewriter{out: "orders"}
	ms := newMockKVStore()
	ms.getErr = errors.New("read timeout")
	ms.setErr = errors.New("write timeout")
	c := New(inner, ms, time.Hour, nil, zap.NewNop())

	got, err := c.Rewrite(context.Background(), "ordrs")
	if err != nil || got != "orders" {
		t.Fatalf("got %q, %v", got, err)
	}
}
