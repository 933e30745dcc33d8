// Package chi is the HTTP transport: routing, request decoding and the
// response envelope.
package chi

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/ranking"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	expuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/experiment"
	healthuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/health"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/suggest"
)

// Dead-letter listing bounds.
const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 1000
)

// Services are the use cases served over HTTP. Admin and Experiments may be nil,
// in which case their routes answer 501.
type Services struct {
	Search       Searcher
	Suggest      Suggester
	Sync         Scheduler
	Experiments  Experiments
	Admin        Admin
	Health       HealthChecker
	// RewriteUsage is nil unless the rewriter runs with a token budget.
	RewriteUsage RewriteUsage
}

// Server holds the HTTP handlers.
type Server struct {
	svc    Services
	logger *zap.Logger
}

// NewServer creates the HTTP handlers.
func NewServer(svc Services, logger *zap.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	page, err := s.svc.Search.Search(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// LiveSearch handles POST /api/v1/search/live.
func (s *Server) LiveSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	page, err := s.svc.Search.LiveSearch(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

// IntelligentSearch handles POST /api/v1/search/intelligent.
func (s *Server) IntelligentSearch(w http.ResponseWriter, r *http.Request) {
	var body intelligentBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	res, err := s.svc.Search.IntelligentSearch(r.Context(), req, body.options())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Suggest handles GET /api/v1/suggest.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var prefix string
	var size *int
	if err := queryParam(r, "prefix", &prefix); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := queryParam(r, "size", &size); err != nil {
		handleDomainError(w, r, err)
		return
	}
	n := suggest.DefaultSize
	if size != nil {
		n = *size
	}
	out, err := s.svc.Suggest.Suggest(r.Context(), prefix, n)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

// ScheduleSync handles POST /api/v1/sync/tasks.
func (s *Server) ScheduleSync(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	priority := synctask.PriorityNormal
	if body.Priority != nil {
		priority = *body.Priority
	}

	var (
		t     synctask.Task
		added bool
		err   error
	)
	switch body.Type {
	case synctask.TypeCreate:
		t, added, err = s.svc.Sync.ScheduleCreate(body.ID, priority)
	case synctask.TypeUpdate:
		t, added, err = s.svc.Sync.ScheduleUpdate(body.ID, priority)
	case synctask.TypeDelete:
		t, added, err = s.svc.Sync.ScheduleDelete(body.ID, priority)
	case synctask.TypeBulk:
		t, added, err = s.svc.Sync.ScheduleBulk(body.IDs, body.FullSync, priority)
	default:
		err = domain.NewValidation("type", "unsupported value "+strconv.Quote(string(body.Type)))
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, syncAccepted{Ref: t.Ref(), Queued: added, Task: t})
}

// CreateExperiment handles POST /api/v1/experiments.
func (s *Server) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	var body experimentBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	e, err := s.svc.Experiments.Create(r.Context(), expuc.CreateInput{
		ID:          body.ID,
		Name:        body.Name,
		Description: body.Description,
		Variants:    body.Variants,
		ExpiresAt:   body.ExpiresAt,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, e)
}

// ListExperiments handles GET /api/v1/experiments.
func (s *Server) ListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Experiments.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// GetExperiment handles GET /api/v1/experiments/{id}.
func (s *Server) GetExperiment(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	e, err := s.svc.Experiments.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, e)
}

// StartExperiment handles POST /api/v1/experiments/{id}/start.
func (s *Server) StartExperiment(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	e, err := s.svc.Experiments.Start(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, e)
}

// StopExperiment handles POST /api/v1/experiments/{id}/stop.
func (s *Server) StopExperiment(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	e, err := s.svc.Experiments.Stop(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, e)
}

// AssignVariant handles GET /api/v1/experiments/{id}/assignment.
func (s *Server) AssignVariant(w http.ResponseWriter, r *http.Request) {
	var id, userID, force string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := queryParam(r, "userId", &userID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := queryParam(r, "force", &force); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if userID == "" {
		handleDomainError(w, r, domain.NewValidation("userId", "is required"))
		return
	}
	a, err := s.svc.Experiments.AssignVariant(r.Context(), id, userID, force)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

// RecordOutcome handles POST /api/v1/experiments/{id}/outcomes.
func (s *Server) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var body outcomeBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	o, err := s.svc.Experiments.RecordOutcome(r.Context(), id, body.UserID, body.SessionID, body.Metrics)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, o)
}

// ExperimentReport handles GET /api/v1/experiments/{id}/report.
func (s *Server) ExperimentReport(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := pathParam(r, "id", &id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	rep, err := s.svc.Experiments.Report(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

// SetUserWeights handles PUT /api/v1/users/{userId}/weights.
func (s *Server) SetUserWeights(w http.ResponseWriter, r *http.Request) {
	var userID string
	if err := pathParam(r, "userId", &userID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var weights ranking.Weights
	if err := decodeBody(r, &weights); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := s.svc.Experiments.SetUserWeights(r.Context(), userID, weights); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, weights)
}

// Health handles GET /health. Degraded still answers 200.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rep := s.svc.Health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, Envelope{Success: rep.Status != healthuc.Unhealthy, Data: rep})
}

func notConfigured(w http.ResponseWriter, r *http.Request) {
	handleDomainError(w, r, domain.ErrNotImplemented)
}
