package chi

import (
	"net/http"

	rewriteuc "github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/rewrite"
)

// InitializeIndex handles POST /api/v1/admin/index/initialize.
func (s *Server) InitializeIndex(w http.ResponseWriter, r *http.Request) {
	var recreate bool
	if err := queryParam(r, "recreate", &recreate); err != nil {
		handleDomainError(w, r, err)
		return
	}
	res, err := s.svc.Admin.InitializeIndex(r.Context(), recreate)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// RefreshIndex handles POST /api/v1/admin/index/refresh.
func (s *Server) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Admin.RefreshIndex()
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, syncAccepted{Ref: t.Ref(), Queued: true, Task: t})
}

// OptimizeIndex handles POST /api/v1/admin/index/optimize.
func (s *Server) OptimizeIndex(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Admin.OptimizeIndex(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"invalidated": n})
}

// IndexStats handles GET /api/v1/admin/index/stats.
func (s *Server) IndexStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Admin.Stats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// QueueStatus handles GET /api/v1/admin/queue.
func (s *Server) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.svc.Admin.QueueStatus())
}

// DeadLetters handles GET /api/v1/admin/queue/dead-letters.
func (s *Server) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if err := queryParam(r, "limit", &limit); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if limit <= 0 || limit > maxDeadLetterLimit {
		limit = defaultDeadLetterLimit
	}
	letters, err := s.svc.Admin.DeadLetters(r.Context(), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, letters)
}

// ArchiveDeadLetters handles POST /api/v1/admin/queue/dead-letters/archive.
func (s *Server) ArchiveDeadLetters(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Admin.ArchiveDeadLetters(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Resync handles POST /api/v1/admin/resync.
func (s *Server) Resync(w http.ResponseWriter, r *http.Request) {
	var body resyncBody
	if err := decodeBody(r, &body); err != nil {
		handleDomainError(w, r, err)
		return
	}
	t, err := s.svc.Admin.Resync(body.IDs, body.FullSync)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, syncAccepted{Ref: t.Ref(), Queued: true, Task: t})
}

// RewriteUsage handles GET /api/v1/admin/rewrite/usage?period=day|month.
func (s *Server) RewriteUsage(w http.ResponseWriter, r *http.Request) {
	period := string(rewriteuc.PeriodDay)
	if err := queryParam(r, "period", &period); err != nil {
		handleDomainError(w, r, err)
		return
	}
	u, err := s.svc.RewriteUsage.Usage(rewriteuc.Period(period))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, u)
}
