package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
)

func TestInitializeIndex(t *testing.T) {
	tests := []struct {
		name       string
		recreate   bool
		created    bool
		wantResync bool
	}{
		{"already exists", false, false, false},
		{"created", false, true, true},
		{"recreate", true, false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var recreated bool
			eng := &mockManagedEngine{
				ensureFn:   func(context.Context) (bool, error) { return tc.created, nil },
				recreateFn: func(context.Context) error { recreated = true; return nil },
			}
			q := &mockQueue{}
			svc := New(eng, q, nil, nil, zap.NewNop())

			res, err := svc.InitializeIndex(context.Background(), tc.recreate)
			if err != nil {
				t.Fatalf("InitializeIndex: %v", err)
			}
			if recreated != tc.recreate || res.Recreated != tc.recreate || res.Created != tc.created {
				t.Errorf("unexpected result %+v (recreated=%v)", res, recreated)
			}
			if (res.Resync != nil) != tc.wantResync || (len(q.bulks) == 1) != tc.wantResync {
				t.Errorf("resync = %+v, bulks = %v", res.Resync, q.bulks)
			}
			if tc.wantResync && (!q.bulks[0].fullSync || q.bulks[0].priority != synctask.PriorityHigh) {
				t.Errorf("expected high-priority full sync, got %+v", q.bulks[0])
			}
		})
	}
}

func TestInitializeIndex_EngineError(t *testing.T) {
	eng := &mockManagedEngine{
		ensureFn: func(context.Context) (bool, error) { return false, domain.NewTransient("exists", errors.New("down")) },
	}
	svc := New(eng, &mockQueue{}, nil, nil, zap.NewNop())
	if _, err := svc.InitializeIndex(context.Background(), false); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestInitializeIndex_EmbeddedEngine(t *testing.T) {
	q := &mockQueue{}
	svc := New(&mockEngine{}, q, nil, nil, zap.NewNop())
	res, err := svc.InitializeIndex(context.Background(), false)
	if err != nil || res.Created || len(q.bulks) != 0 {
		t.Fatalf("got %+v, %v, bulks=%v", res, err, q.bulks)
	}
}

func TestOptimizeIndex_PurgesAllTiers(t *testing.T) {
	c := &mockCache{n: 7}
	svc := New(&mockEngine{}, &mockQueue{}, c, nil, zap.NewNop())
	n, err := svc.OptimizeIndex(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("got %d, %v", n, err)
	}
	if len(c.tiers) != len(tier.All) {
		t.Errorf("tiers = %v", c.tiers)
	}
}

func TestStatsAndQueueStatus(t *testing.T) {
	want := engine.Stats{Backend: engine.BackendBleve, Documents: 3}
	q := &mockQueue{status: indexsync.Status{Ready: 2, Running: true}}
	svc := New(&mockEngine{stats: want}, q, nil, nil, zap.NewNop())

	got, err := svc.Stats(context.Background())
	if err != nil || got != want {
		t.Errorf("stats = %+v, %v", got, err)
	}
	if st := svc.QueueStatus(); st.Ready != 2 || !st.Running {
		t.Errorf("status = %+v", st)
	}
}

func TestResync_PropagatesValidation(t *testing.T) {
	q := &mockQueue{err: domain.NewValidation("ids", "required")}
	svc := New(&mockEngine{}, q, nil, nil, zap.NewNop())
	if _, err := svc.Resync(nil, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v", err)
	}
}

func TestArchiveDeadLetters(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	letters := []synctask.DeadLetter{
		{Task: synctask.Task{ID: "a"}, Reason: "boom"},
		{Task: synctask.Task{ID: "b"}, Reason: "boom"},
	}
	var got []synctask.DeadLetter
	arch := &mockArchive{putFn: func(_ context.Context, l []synctask.DeadLetter, at time.Time) (string, error) {
		got = l
		if !at.Equal(ts) {
			t.Errorf("timestamp = %v", at)
		}
		return "deadletters/x.ndjson", nil
	}}
	svc := New(&mockEngine{}, &mockQueue{letters: letters}, nil, arch, zap.NewNop())
	svc.now = func() time.Time { return ts }

	res, err := svc.ArchiveDeadLetters(context.Background())
	if err != nil {
		t.Fatalf("ArchiveDeadLetters: %v", err)
	}
	if res.Count != 2 || res.Key != "deadletters/x.ndjson" || len(got) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestArchiveDeadLetters_Empty(t *testing.T) {
	arch := &mockArchive{putFn: func(context.Context, []synctask.DeadLetter, time.Time) (string, error) {
		t.Fatal("nothing to archive")
		return "", nil
	}}
	svc := New(&mockEngine{}, &mockQueue{}, nil, arch, zap.NewNop())
	if res, err := svc.ArchiveDeadLetters(context.Background()); err != nil || res.Count != 0 {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestArchiveDeadLetters_NotConfigured(t *testing.T) {
	svc := New(&mockEngine{}, &mockQueue{}, nil, nil, zap.NewNop())
	if _, err := svc.ArchiveDeadLetters(context.Background()); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("got %v", err)
	}
}
