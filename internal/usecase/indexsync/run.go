package indexsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Status is a point-in-time view of the queue.
type Status struct {
	Ready        int       `json:"ready"`
	Delayed      int       `json:"delayed"`
	Processing   int       `json:"processing"`
	Processed    uint64    `json:"processed"`
	Failed       uint64    `json:"failed"`
	Dead         uint64    `json:"dead"`
	DeadInMemory int       `json:"deadInMemory"`
	LastBatchAt  time.Time `json:"lastBatchAt,omitzero"`
	Running      bool      `json:"running"`
}

// Status returns queue depths and lifetime counters.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Ready:        s.ready.Len(),
		Delayed:      s.delayed.Len(),
		Processing:   s.inFlight,
		Processed:    s.processedTotal.Load(),
		Failed:       s.failedTotal.Load(),
		Dead:         s.deadTotal.Load(),
		DeadInMemory: len(s.deadMem),
		LastBatchAt:  s.lastRun,
		Running:      s.running.Load(),
	}
}

// Run consumes the queue until ctx is cancelled. It wakes on every enqueue,
// on the configured interval and when the earliest retry becomes due, then
// drains all ready tasks.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Index sync loop started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	for {
		s.drain(ctx)

		var (
			timer   *time.Timer
			retryCh <-chan time.Time
		)
		if d, ok := s.nextRetryIn(); ok {
			timer = time.NewTimer(d)
			retryCh = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			s.logger.Info("Index sync loop stopped")
			return nil
		case <-ticker.C:
		case <-s.wake:
		case <-retryCh:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// drain processes batches until a batch finds nothing to do.
func (s *Service) drain(ctx context.Context) {
	for ctx.Err() == nil {
		sum, err := s.ProcessBatch(ctx)
		if err != nil {
			if !errors.Is(err, ErrBatchInProgress) {
				s.logger.Error("Sync batch failed", zap.Error(err))
			}
			return
		}
		if sum.OK+sum.Retried+sum.Dead == 0 {
			return
		}
	}
}

func (s *Service) nextRetryIn() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delayed.Len() == 0 {
		return 0, false
	}
	return max(s.delayed[0].ScheduledAt.Sub(s.now()), 0), true
}
