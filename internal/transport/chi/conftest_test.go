package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

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
	searchuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/search"
)

// --- Searcher ---

type mockSearcher struct {
	searchFn      func(ctx context.Context, req *request.Request) (result.Page, error)
	intelligentFn func(ctx context.Context, req *request.Request, opts searchuc.IntelligentOptions) (searchuc.Intelligent, error)
	lastMode      string
}

func (m *mockSearcher) Search(ctx context.Context, req *request.Request) (result.Page, error) {
	m.lastMode = "search"
	return m.searchFn(ctx, req)
}

func (m *mockSearcher) LiveSearch(ctx context.Context, req *request.Request) (result.Page, error) {
	m.lastMode = "live"
	return m.searchFn(ctx, req)
}

func (m *mockSearcher) IntelligentSearch(
	ctx context.Context, req *request.Request, opts searchuc.IntelligentOptions,
) (searchuc.Intelligent, error) {
	return m.intelligentFn(ctx, req, opts)
}

// --- Suggester ---

type mockSuggester struct {
	suggestFn func(ctx context.Context, prefix string, size int) ([]suggestion.Suggestion, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, prefix string, size int) ([]suggestion.Suggestion, error) {
	return m.suggestFn(ctx, prefix, size)
}

// --- Scheduler ---

type scheduled struct {
	typ      synctask.Type
	id       string
	ids      []string
	fullSync bool
	priority int
}

type mockScheduler struct {
	calls []scheduled
	err   error
}

func (m *mockScheduler) record(c scheduled) (synctask.Task, bool, error) {
	if m.err != nil {
		return synctask.Task{}, false, m.err
	}
	m.calls = append(m.calls, c)
	p, err := synctask.NewPayload(c.typ, c.id, c.ids, c.fullSync)
	if err != nil {
		return synctask.Task{}, false, err
	}
	return synctask.Task{ID: "t1", Seq: uint64(len(m.calls)), Payload: p, Priority: c.priority}, true, nil
}

func (m *mockScheduler) ScheduleCreate(id string, priority int) (synctask.Task, bool, error) {
	return m.record(scheduled{typ: synctask.TypeCreate, id: id, priority: priority})
}

func (m *mockScheduler) ScheduleUpdate(id string, priority int) (synctask.Task, bool, error) {
	return m.record(scheduled{typ: synctask.TypeUpdate, id: id, priority: priority})
}

func (m *mockScheduler) ScheduleDelete(id string, priority int) (synctask.Task, bool, error) {
	return m.record(scheduled{typ: synctask.TypeDelete, id: id, priority: priority})
}

func (m *mockScheduler) ScheduleBulk(ids []string, fullSync bool, priority int) (synctask.Task, bool, error) {
	return m.record(scheduled{typ: synctask.TypeBulk, ids: ids, fullSync: fullSync, priority: priority})
}

// --- Experiments ---

type mockExperiments struct {
	getFn     func(ctx context.Context, id string) (domexp.Experiment, error)
	assignFn  func(ctx context.Context, expID, userID, force string) (domexp.Assignment, error)
	reportFn  func(ctx context.Context, expID string) (domexp.Report, error)
	createIn  expuc.CreateInput
	weightsFn func(ctx context.Context, userID string, w ranking.Weights) error
}

func (m *mockExperiments) Create(_ context.Context, in expuc.CreateInput) (domexp.Experiment, error) {
	m.createIn = in
	return domexp.Experiment{ID: "exp-1", Name: in.Name, Variants: in.Variants, Status: domexp.StatusCreated}, nil
}

func (m *mockExperiments) List(context.Context) ([]domexp.Experiment, error) { return nil, nil }

func (m *mockExperiments) Get(ctx context.Context, id string) (domexp.Experiment, error) {
	return m.getFn(ctx, id)
}

func (m *mockExperiments) Start(ctx context.Context, id string) (domexp.Experiment, error) {
	return m.getFn(ctx, id)
}

func (m *mockExperiments) Stop(ctx context.Context, id string) (domexp.Experiment, error) {
	return m.getFn(ctx, id)
}

func (m *mockExperiments) AssignVariant(ctx context.Context, expID, userID, force string) (domexp.Assignment, error) {
	return m.assignFn(ctx, expID, userID, force)
}

func (m *mockExperiments) RecordOutcome(
	_ context.Context, expID, userID, sessionID string, values map[string]float64,
) (domexp.Outcome, error) {
	return domexp.Outcome{ExperimentID: expID, UserID: userID, SessionID: sessionID, Metrics: values}, nil
}

func (m *mockExperiments) Report(ctx context.Context, expID string) (domexp.Report, error) {
	if m.reportFn != nil {
		return m.reportFn(ctx, expID)
	}
	return domexp.Report{ExperimentID: expID}, nil
}

func (m *mockExperiments) SetUserWeights(ctx context.Context, userID string, w ranking.Weights) error {
	return m.weightsFn(ctx, userID, w)
}

// --- Admin ---

type mockAdmin struct {
	archiveErr error
	status     indexsync.Status
}

func (m *mockAdmin) InitializeIndex(_ context.Context, recreate bool) (adminuc.InitResult, error) {
	return adminuc.InitResult{Created: !recreate, Recreated: recreate}, nil
}

func (m *mockAdmin) RefreshIndex() (synctask.Task, error) {
	return synctask.Task{ID: "t1", Seq: 7, Payload: synctask.Bulk{FullSync: true}}, nil
}

func (m *mockAdmin) OptimizeIndex(context.Context) (int, error) { return 3, nil }

func (m *mockAdmin) Stats(context.Context) (engine.Stats, error) {
	return engine.Stats{Backend: engine.BackendBleve, Name: "assets", Documents: 12}, nil
}

func (m *mockAdmin) QueueStatus() indexsync.Status { return m.status }

func (m *mockAdmin) DeadLetters(_ context.Context, limit int) ([]synctask.DeadLetter, error) {
	return make([]synctask.DeadLetter, 0, limit), nil
}

func (m *mockAdmin) Resync(ids []string, fullSync bool) (synctask.Task, error) {
	return synctask.Task{ID: "t2", Seq: 8, Payload: synctask.Bulk{IDs: ids, FullSync: fullSync}}, nil
}

func (m *mockAdmin) ArchiveDeadLetters(context.Context) (adminuc.ArchiveResult, error) {
	if m.archiveErr != nil {
		return adminuc.ArchiveResult{}, m.archiveErr
	}
	return adminuc.ArchiveResult{Key: "dead-letters/x.json.zst", Count: 2}, nil
}

// --- Health ---

type mockHealth struct{ report healthuc.Report }

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- helpers ---

func newTestRouter(svc Services) http.Handler {
	return NewServer(svc, zap.NewNop()).Router(nil)
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var rdr io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rdr)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env Envelope
	if ct := rr.Header().Get("Content-Type"); ct == "application/json" {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, rr.Body.String())
		}
	}
	return rr, env
}

// dataAs re-decodes the envelope payload into dst.
func dataAs(t *testing.T, env Envelope, dst any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}
