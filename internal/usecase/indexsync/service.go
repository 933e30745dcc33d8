// Package indexsync propagates system-of-record changes into the search index.
// Change notifications carry ids only; the current record is resolved when the
// task runs, so every write is an idempotent upsert or delete keyed by id.
package indexsync

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/asset"
	dombatch "github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/batch"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/search/tier"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/metrics"
)

var (
	// ErrBatchInProgress is returned when ProcessBatch overlaps a running batch.
	ErrBatchInProgress = errors.New("sync batch already in progress")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("sync loop already running")
)

// Config tunes batching, retries and pacing.
type Config struct {
	BatchSize   int
	MaxAttempts int
	// Retry delay is BackoffUnit * BackoffBase^attempt, capped at MaxBackoff.
	BackoffBase      float64
	BackoffUnit      time.Duration
	MaxBackoff       time.Duration
	Interval         time.Duration
	WritesPerSecond  float64
	FullSyncPageSize int
}

// DefaultConfig returns the built-in queue settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:        50,
		MaxAttempts:      5,
		BackoffBase:      2,
		BackoffUnit:      time.Second,
		MaxBackoff:       5 * time.Minute,
		Interval:         5 * time.Second,
		FullSyncPageSize: 500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase < 1 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = d.BackoffUnit
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.FullSyncPageSize <= 0 {
		c.FullSyncPageSize = d.FullSyncPageSize
	}
	return c
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTaskObserver registers a callback invoked on every task status transition.
// It runs synchronously on the queue's goroutine and must not block.
func WithTaskObserver(fn func(synctask.Task)) Option {
	return func(s *Service) { s.observer = fn }
}

// Service is the index synchronization queue. It is safe for concurrent
// producers; Run is its single consumer.
type Service struct {
	source   SourceReader
	index    IndexWriter
	cache    CacheInvalidator
	dead     DeadLetterStore
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger
	now      func() time.Time
	observer func(synctask.Task)

	mu       sync.Mutex
	seq      uint64
	pending  map[string]*synctask.Task // dedup key -> queued task (ready or delayed)
	ready    readyHeap
	delayed  delayedHeap
	inFlight int
	deadMem  []synctask.DeadLetter
	lastRun  time.Time

	processedTotal atomic.Uint64
	failedTotal    atomic.Uint64
	deadTotal      atomic.Uint64

	wake       chan struct{}
	processing atomic.Bool
	running    atomic.Bool
}

// New creates a sync queue. cache and dead may be nil: invalidation is then
// skipped and dead letters are kept in memory only.
func New(
	source SourceReader, index IndexWriter, cache CacheInvalidator, dead DeadLetterStore,
	cfg Config, logger *zap.Logger, opts ...Option,
) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		source:  source,
		index:   index,
		cache:   cache,
		dead:    dead,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]*synctask.Task),
		wake:    make(chan struct{}, 1),
	}
	if cfg.WritesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), max(1, int(cfg.WritesPerSecond)))
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScheduleCreate queues indexing of a new record. It returns the queued task
// and whether it was newly added; a duplicate of a waiting task is not.
func (s *Service) ScheduleCreate(id string, priority int) (synctask.Task, bool, error) {
	return s.schedule(synctask.Create{ID: id}, priority)
}

// ScheduleUpdate queues re-indexing of a changed record.
func (s *Service) ScheduleUpdate(id string, priority int) (synctask.Task, bool, error) {
	return s.schedule(synctask.Update{ID: id}, priority)
}

// ScheduleDelete queues removal of a record from the index.
func (s *Service) ScheduleDelete(id string, priority int) (synctask.Task, bool, error) {
	return s.schedule(synctask.Delete{ID: id}, priority)
}

// ScheduleBulk queues re-indexing of ids, or of every record when fullSync is set.
func (s *Service) ScheduleBulk(ids []string, fullSync bool, priority int) (synctask.Task, bool, error) {
	return s.schedule(synctask.Bulk{IDs: ids, FullSync: fullSync}, priority)
}

func (s *Service) schedule(p synctask.Payload, priority int) (synctask.Task, bool, error) {
	if err := validatePayload(p); err != nil {
		return synctask.Task{}, false, err
	}
	s.mu.Lock()
	t, added := s.enqueueLocked(p, priority)
	snapshot := *t
	s.mu.Unlock()

	if added {
		s.notify(snapshot)
		s.signal()
	}
	return snapshot, added, nil
}

func validatePayload(p synctask.Payload) error {
	switch v := p.(type) {
	case synctask.Bulk:
		if !v.FullSync && len(v.IDs) == 0 {
			return domain.NewValidation("ids", "required unless fullSync is set")
		}
		for _, id := range v.IDs {
			if id == "" {
				return domain.NewValidation("ids", "must not contain empty ids")
			}
		}
	default:
		if (synctask.Task{Payload: p}).TargetID() == "" {
			return domain.NewValidation("id", "is required")
		}
	}
	return nil
}

// enqueueLocked adds a task unless an equivalent one is already waiting. A
// duplicate carrying a higher priority raises the waiting task's priority.
func (s *Service) enqueueLocked(p synctask.Payload, priority int) (*synctask.Task, bool) {
	key := p.Key()
	if existing, ok := s.pending[key]; ok {
		if priority > existing.Priority {
			existing.Priority = priority
			if existing.Status == synctask.StatusPending {
				heap.Init(&s.ready)
			}
		}
		return existing, false
	}
	s.seq++
	now := s.now()
	t := &synctask.Task{
		ID:          uuid.NewString(),
		Seq:         s.seq,
		Payload:     p,
		Priority:    priority,
		MaxAttempts: s.cfg.MaxAttempts,
		Status:      synctask.StatusPending,
		EnqueuedAt:  now,
		ScheduledAt: now,
	}
	s.pending[key] = t
	heap.Push(&s.ready, t)
	s.updateDepthLocked()
	return t, true
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ProcessBatch promotes due retries, then applies up to BatchSize ready tasks
// in priority order. Failed tasks are rescheduled or dead-lettered without
// affecting their siblings.
func (s *Service) ProcessBatch(ctx context.Context) (dombatch.Summary, error) {
	if !s.processing.CompareAndSwap(false, true) {
		return dombatch.Summary{}, ErrBatchInProgress
	}
	defer s.processing.Store(false)

	tasks := s.dequeue(s.now())
	if len(tasks) == 0 {
		return dombatch.Summary{}, nil
	}
	start := time.Now()

	// Retried tasks go straight from retry to their next outcome.
	for _, t := range tasks {
		if t.Status == synctask.StatusPending {
			t.Status = synctask.StatusProcessing
			s.notify(*t)
		}
	}

	docs, fetchErr := s.prefetch(ctx, tasks)

	results := make([]dombatch.Result, 0, len(tasks))
	var dead []synctask.DeadLetter
	for i, t := range tasks {
		if ctx.Err() != nil {
			s.requeue(tasks[i:])
			break
		}
		t.Attempt++
		err := s.apply(ctx, t, docs, fetchErr)
		r, dl := s.settle(t, err)
		results = append(results, r)
		if dl != nil {
			dead = append(dead, *dl)
		}
	}

	s.mu.Lock()
	s.inFlight = 0
	s.lastRun = s.now()
	s.updateDepthLocked()
	s.mu.Unlock()

	s.storeDeadLetters(ctx, dead)

	summary := dombatch.Summarize(results)
	if summary.OK > 0 {
		s.invalidate(ctx)
	}
	metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("Sync batch processed",
		zap.Int("tasks", len(tasks)),
		zap.Int("ok", summary.OK),
		zap.Int("retried", summary.Retried),
		zap.Int("dead", summary.Dead),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (s *Service) dequeue(now time.Time) []*synctask.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.delayed.Len() > 0 && !s.delayed[0].ScheduledAt.After(now) {
		heap.Push(&s.ready, heap.Pop(&s.delayed))
	}
	n := min(s.cfg.BatchSize, s.ready.Len())
	out := make([]*synctask.Task, 0, n)
	for i := 0; i < n; i++ {
		t := heap.Pop(&s.ready).(*synctask.Task)
		delete(s.pending, t.DedupKey())
		out = append(out, t)
	}
	s.inFlight = len(out)
	s.updateDepthLocked()
	return out
}

// requeue returns untouched tasks to the ready heap after cancellation.
func (s *Service) requeue(tasks []*synctask.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if _, dup := s.pending[t.DedupKey()]; dup {
			continue
		}
		if t.Attempt == 0 {
			t.Status = synctask.StatusPending
		}
		s.pending[t.DedupKey()] = t
		heap.Push(&s.ready, t)
	}
}

// prefetch resolves every create/update target of the batch in one read.
func (s *Service) prefetch(ctx context.Context, tasks []*synctask.Task) (map[string]asset.Document, error) {
	var ids []string
	for _, t := range tasks {
		switch p := t.Payload.(type) {
		case synctask.Create:
			ids = append(ids, p.ID)
		case synctask.Update:
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.source.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	return docs, nil
}

func (s *Service) apply(ctx context.Context, t *synctask.Task, docs map[string]asset.Document, fetchErr error) error {
	switch p := t.Payload.(type) {
	case synctask.Create:
		return s.upsert(ctx, p.ID, docs, fetchErr)
	case synctask.Update:
		return s.upsert(ctx, p.ID, docs, fetchErr)
	case synctask.Delete:
		if err := s.wait(ctx); err != nil {
			return err
		}
		return s.index.Delete(ctx, p.ID)
	case synctask.Bulk:
		return s.expand(ctx, p, t.Priority)
	}
	return domain.NewValidation("payload", fmt.Sprintf("unsupported task type %T", t.Payload))
}

// upsert writes the current record, or deletes it from the index when the
// record no longer exists.
func (s *Service) upsert(ctx context.Context, id string, docs map[string]asset.Document, fetchErr error) error {
	if fetchErr != nil {
		return fetchErr
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	doc, ok := docs[id]
	if !ok {
		s.logger.Debug("Record gone, removing from index", zap.String("id", id))
		return s.index.Delete(ctx, id)
	}
	return s.index.Upsert(ctx, doc)
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("write pacing: %w", err)
	}
	return nil
}

// expand turns a bulk task into per-record update tasks with the bulk's
// priority. A full sync also schedules deletes for indexed ids that no longer
// exist in the source.
func (s *Service) expand(ctx context.Context, p synctask.Bulk, priority int) error {
	ids := p.IDs
	if p.FullSync {
		var err error
		if ids, err = s.allSourceIDs(ctx); err != nil {
			return err
		}
	}

	var added []synctask.Task
	s.mu.Lock()
	for _, id := range ids {
		if t, ok := s.enqueueLocked(synctask.Update{ID: id}, priority); ok {
			added = append(added, *t)
		}
	}
	s.mu.Unlock()

	if p.FullSync {
		added = append(added, s.scheduleOrphans(ctx, ids, priority)...)
	}
	for _, t := range added {
		s.notify(t)
	}
	s.logger.Info("Bulk sync expanded",
		zap.Bool("full_sync", p.FullSync),
		zap.Int("records", len(ids)),
		zap.Int("queued", len(added)),
	)
	return nil
}

func (s *Service) allSourceIDs(ctx context.Context) ([]string, error) {
	var (
		ids   []string
		after string
	)
	for {
		page, err := s.source.ListIDs(ctx, after, s.cfg.FullSyncPageSize)
		if err != nil {
			return nil, fmt.Errorf("list source ids: %w", err)
		}
		ids = append(ids, page...)
		if len(page) < s.cfg.FullSyncPageSize {
			return ids, nil
		}
		after = page[len(page)-1]
	}
}

func (s *Service) scheduleOrphans(ctx context.Context, sourceIDs []string, priority int) []synctask.Task {
	indexed, err := s.index.AllIDs(ctx)
	if err != nil {
		s.logger.Warn("Orphan scan skipped", zap.Error(err))
		return nil
	}
	live := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		live[id] = struct{}{}
	}
	var added []synctask.Task
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range indexed {
		if _, ok := live[id]; ok {
			continue
		}
		if t, ok := s.enqueueLocked(synctask.Delete{ID: id}, priority); ok {
			added = append(added, *t)
		}
	}
	return added
}

// settle records the outcome of one attempt.
func (s *Service) settle(t *synctask.Task, err error) (dombatch.Result, *synctask.DeadLetter) {
	if err == nil {
		t.Status = synctask.StatusDone
		t.LastError = ""
		s.processedTotal.Add(1)
		s.notify(*t)
		return dombatch.NewOK(t.Ref()), nil
	}

	now := s.now()
	t.LastError = err.Error()
	fields := []zap.Field{
		zap.String("task", t.Ref()),
		zap.String("type", string(t.Type())),
		zap.String("target", t.TargetID()),
		zap.Int("attempt", t.Attempt),
		zap.Error(err),
	}

	if errors.Is(err, domain.ErrValidation) || t.Attempt >= t.MaxAttempts {
		t.Status = synctask.StatusDead
		s.deadTotal.Add(1)
		s.notify(*t)
		s.logger.Error("Sync task moved to dead letters", fields...)
		dl := synctask.DeadLetter{Task: *t, Reason: err.Error(), FailedAt: now}
		return dombatch.NewDead(t.Ref(), fmt.Errorf("%w: %w", domain.ErrPermanentTask, err)), &dl
	}

	t.Status = synctask.StatusRetry
	t.ScheduledAt = now.Add(s.backoff(t.Attempt))
	s.failedTotal.Add(1)
	s.notify(*t)
	s.logger.Warn("Sync task failed, retry scheduled", append(fields, zap.Time("retry_at", t.ScheduledAt))...)

	s.mu.Lock()
	if _, dup := s.pending[t.DedupKey()]; !dup {
		s.pending[t.DedupKey()] = t
		heap.Push(&s.delayed, t)
	}
	s.mu.Unlock()
	return dombatch.NewRetry(t.Ref(), err, t.ScheduledAt), nil
}

// backoff returns the delay before the next attempt after `attempt` failures.
func (s *Service) backoff(attempt int) time.Duration {
	d := float64(s.cfg.BackoffUnit) * math.Pow(s.cfg.BackoffBase, float64(attempt))
	if math.IsInf(d, 0) || d > float64(s.cfg.MaxBackoff) {
		return s.cfg.MaxBackoff
	}
	return time.Duration(d)
}

func (s *Service) storeDeadLetters(ctx context.Context, letters []synctask.DeadLetter) {
	if len(letters) == 0 {
		return
	}
	if s.dead != nil {
		err := s.dead.Add(ctx, letters...)
		if err == nil {
			return
		}
		s.logger.Error("Failed to persist dead letters, keeping in memory",
			zap.Int("count", len(letters)), zap.Error(err))
	}
	s.mu.Lock()
	s.deadMem = append(s.deadMem, letters...)
	s.mu.Unlock()
}

// DeadLetters returns up to limit of the newest dead letters, oldest first,
// including those that could not be persisted.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]synctask.DeadLetter, error) {
	s.mu.Lock()
	mem := append([]synctask.DeadLetter(nil), s.deadMem...)
	s.mu.Unlock()

	var out []synctask.DeadLetter
	if s.dead != nil {
		stored, err := s.dead.Recent(ctx, limit)
		if err != nil {
			return mem, fmt.Errorf("read dead letters: %w", err)
		}
		out = stored
	}
	out = append(out, mem...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	n, err := s.cache.Invalidate(ctx, tier.Live, tier.Search, tier.Suggestion)
	if err != nil {
		s.logger.Warn("Cache invalidation failed", zap.Error(err))
		return
	}
	s.logger.Debug("Cache invalidated", zap.Int("keys", n))
}

func (s *Service) notify(t synctask.Task) {
	metrics.SyncTasksTotal.WithLabelValues(string(t.Type()), string(t.Status)).Inc()
	if s.observer != nil {
		s.observer(t)
	}
}

func (s *Service) updateDepthLocked() {
	metrics.SyncQueueDepth.WithLabelValues("ready").Set(float64(s.ready.Len()))
	metrics.SyncQueueDepth.WithLabelValues("delayed").Set(float64(s.delayed.Len()))
}
