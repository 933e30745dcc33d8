package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates that reads are still answered, possibly by the fallback.
	Degraded Status = "degraded"
	// Unhealthy indicates that neither the engine nor the fallback can answer.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names.
const (
	ComponentEngine   = "engine"
	ComponentFallback = "fallback"
	ComponentCache    = "cache"
	ComponentRewriter = "rewriter"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	engine   Pinger
	fallback Pinger
	cache    Pinger
	rewriter Checker
	timeout  time.Duration
}

// New creates a Service. fallback, cache and rewriter can be nil.
func New(engine, fallback, cache Pinger, rewriter Checker) *Service {
	return &Service{engine: engine, fallback: fallback, cache: cache, rewriter: rewriter, timeout: DefaultTimeout}
}

// Check runs every configured check concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var mu sync.Mutex
	checks := make(map[string]CheckResult, 4)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = CheckError
		} else {
			checks[name] = CheckOK
		}
	}

	var g errgroup.Group
	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			record(name, fn(cctx))
			return nil
		})
	}
	run(ComponentEngine, s.engine.Ping)
	if s.fallback != nil {
		run(ComponentFallback, s.fallback.Ping)
	}
	if s.cache != nil {
		run(ComponentCache, s.cache.Ping)
	}
	if s.rewriter != nil {
		run(ComponentRewriter, s.rewriter.HealthCheck)
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks map[string]CheckResult) Status {
	engineUp := checks[ComponentEngine] == CheckOK
	fallbackUp := checks[ComponentFallback] == CheckOK
	if !engineUp && !fallbackUp {
		return Unhealthy
	}
	for _, v := range checks {
		if v == CheckError {
			return Degraded
		}
	}
	return Healthy
}
