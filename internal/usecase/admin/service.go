// Package admin implements index maintenance and queue inspection.
package admin

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/engine"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/usecase/indexsync"
)

// MaxArchiveBatch bounds how many dead letters one archive call exports.
const MaxArchiveBatch = 10000

// InitResult describes what InitializeIndex did.
type InitResult struct {
	Created   bool           `json:"created"`
	Recreated bool           `json:"recreated"`
	Resync    *synctask.Task `json:"resync,omitempty"`
}

// ArchiveResult locates an exported dead-letter batch.
type ArchiveResult struct {
	Key   string `json:"key,omitempty"`
	Count int    `json:"count"`
}

// Service bundles the admin operations.
type Service struct {
	engine  Engine
	queue   Queue
	cache   CacheInvalidator
	archive Archive
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an admin service. cache and archive may be nil.
func New(eng Engine, queue Queue, cache CacheInvalidator, archive Archive, logger *zap.Logger) *Service {
	return &Service{engine: eng, queue: queue, cache: cache, archive: archive, logger: logger, now: time.Now}
}

// InitializeIndex makes sure the engine index exists. With recreate the
// definition is rebuilt and a full sync is scheduled.
func (s *Service) InitializeIndex(ctx context.Context, recreate bool) (InitResult, error) {
	var res InitResult
	if mgr, ok := s.engine.(IndexManager); ok {
		if recreate {
			if err := mgr.Recreate(ctx); err != nil {
				return InitResult{}, fmt.Errorf("recreate index: %w", err)
			}
			res.Recreated = true
		} else {
			created, err := mgr.EnsureIndex(ctx)
			if err != nil {
				return InitResult{}, fmt.Errorf("ensure index: %w", err)
			}
			res.Created = created
		}
	}
	if recreate || res.Created {
		t, err := s.Resync(nil, true)
		if err != nil {
			return InitResult{}, err
		}
		res.Resync = &t
	}
	s.logger.Info("Index initialized",
		zap.Bool("created", res.Created), zap.Bool("recreated", res.Recreated))
	return res, nil
}

// RefreshIndex schedules a full sync from the system of record.
func (s *Service) RefreshIndex() (synctask.Task, error) {
	return s.Resync(nil, true)
}

// OptimizeIndex purges every cache tier so that reads repopulate from the
// current index. It returns the number of entries removed.
func (s *Service) OptimizeIndex(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.Invalidate(ctx, tier.All...)
	if err != nil {
		return n, fmt.Errorf("purge cache: %w", err)
	}
	s.logger.Info("Cache purged", zap.Int("entries", n))
	return n, nil
}

// Stats returns engine statistics.
func (s *Service) Stats(ctx context.Context) (engine.Stats, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("index stats: %w", err)
	}
	return st, nil
}

// QueueStatus returns the sync queue counters.
func (s *Service) QueueStatus() indexsync.Status {
	return s.queue.Status()
}

// DeadLetters returns up to limit recent dead letters.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]synctask.DeadLetter, error) {
	return s.queue.DeadLetters(ctx, limit)
}

// Resync schedules a bulk sync of ids, or of every record when fullSync is set.
func (s *Service) Resync(ids []string, fullSync bool) (synctask.Task, error) {
	t, added, err := s.queue.ScheduleBulk(ids, fullSync, synctask.PriorityHigh)
	if err != nil {
		return synctask.Task{}, err
	}
	if !added {
		s.logger.Debug("Resync already pending", zap.String("task", t.Ref()))
	}
	return t, nil
}

// ArchiveDeadLetters exports the current dead letters as one object.
func (s *Service) ArchiveDeadLetters(ctx context.Context) (ArchiveResult, error) {
	if s.archive == nil {
		return ArchiveResult{}, fmt.Errorf("dead-letter archive: %w", domain.ErrNotImplemented)
	}
	letters, err := s.queue.DeadLetters(ctx, MaxArchiveBatch)
	if err != nil {
		return ArchiveResult{}, err
	}
	if len(letters) == 0 {
		return ArchiveResult{}, nil
	}
	key, err := s.archive.PutDeadLetters(ctx, letters, s.now().UTC())
	if err != nil {
		return ArchiveResult{}, domain.NewTransient("archive dead letters", err)
	}
	s.logger.Info("Dead letters archived", zap.String("key", key), zap.Int("count", len(letters)))
	return ArchiveResult{Key: key, Count: len(letters)}, nil
}
