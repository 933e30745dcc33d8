package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

// Router mounts every route behind the standard middleware chain.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/search/live", s.LiveSearch)
		r.Post("/search/intelligent", s.IntelligentSearch)
		r.Get("/suggest", s.Suggest)
		r.Post("/sync/tasks", s.ScheduleSync)

		r.Route("/experiments", func(r chi.Router) {
			if s.svc.Experiments == nil {
				r.HandleFunc("/*", notConfigured)
				r.HandleFunc("/", notConfigured)
				return
			}
			r.Post("/", s.CreateExperiment)
			r.Get("/", s.ListExperiments)
			r.Get("/{id}", s.GetExperiment)
			r.Post("/{id}/start", s.StartExperiment)
			r.Post("/{id}/stop", s.StopExperiment)
			r.Get("/{id}/assignment", s.AssignVariant)
			r.Post("/{id}/outcomes", s.RecordOutcome)
			r.Get("/{id}/report", s.ExperimentReport)
		})
		if s.svc.Experiments != nil {
			r.Put("/users/{userId}/weights", s.SetUserWeights)
		} else {
			r.Put("/users/{userId}/weights", notConfigured)
		}

		r.Route("/admin", func(r chi.Router) {
			if s.svc.Admin == nil {
				r.HandleFunc("/*", notConfigured)
				return
			}
			r.Post("/index/initialize", s.InitializeIndex)
			r.Post("/index/refresh", s.RefreshIndex)
			r.Post("/index/optimize", s.OptimizeIndex)
			r.Get("/index/stats", s.IndexStats)
			r.Get("/queue", s.QueueStatus)
			r.Get("/queue/dead-letters", s.DeadLetters)
			r.Post("/queue/dead-letters/archive", s.ArchiveDeadLetters)
			r.Post("/resync", s.Resync)
			if s.svc.RewriteUsage != nil {
				r.Get("/rewrite/usage", s.RewriteUsage)
			} else {
				r.Get("/rewrite/usage", notConfigured)
			}
		})
	})
	return r
}
