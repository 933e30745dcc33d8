package assetsearch

import (
	"context"
	"fmt"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
)

// Task priorities. Higher runs first.
const (
	PriorityLow    = synctask.PriorityLow
	PriorityNormal = synctask.PriorityNormal
	PriorityHigh   = synctask.PriorityHigh
)

// RunSync processes scheduled tasks until ctx is cancelled.
func (c *Client) RunSync(ctx context.Context) error {
	if c.sync == nil {
		return ErrNoSource
	}
	return c.sync.Run(ctx)
}

// ScheduleUpdate queues a re-read of id from the source. It returns the task
// reference; a duplicate of a waiting task returns the existing reference.
func (c *Client) ScheduleUpdate(id string, priority int) (string, error) {
	if c.sync == nil {
		return "", ErrNoSource
	}
	t, _, err := c.sync.ScheduleUpdate(id, priority)
	if err != nil {
		return "", err
	}
	return t.Ref(), nil
}

// ScheduleDelete queues removal of id from the index.
func (c *Client) ScheduleDelete(id string, priority int) (string, error) {
	if c.sync == nil {
		return "", ErrNoSource
	}
	t, _, err := c.sync.ScheduleDelete(id, priority)
	if err != nil {
		return "", err
	}
	return t.Ref(), nil
}

// ScheduleFullSync queues a rebuild of the index from every source record.
// Indexed documents missing from the source are deleted.
func (c *Client) ScheduleFullSync() (string, error) {
	if c.sync == nil {
		return "", ErrNoSource
	}
	t, _, err := c.sync.ScheduleBulk(nil, true, PriorityLow)
	if err != nil {
		return "", fmt.Errorf("schedule full sync: %w", err)
	}
	return t.Ref(), nil
}

// SyncStatus reports queue depths and lifetime counters.
func (c *Client) SyncStatus() (SyncStatus, error) {
	if c.sync == nil {
		return SyncStatus{}, ErrNoSource
	}
	s := c.sync.Status()
	return SyncStatus{
		Ready:      s.Ready,
		Delayed:    s.Delayed,
		Processing: s.Processing,
		Processed:  s.Processed,
		Failed:     s.Failed,
		Dead:       s.Dead,
		Running:    s.Running,
	}, nil
}

// SyncNow processes ready tasks until none are left and reports how many
// were applied. Delayed retries are not waited for. It must not be called
// while RunSync is running.
func (c *Client) SyncNow(ctx context.Context) (applied int, err error) {
	if c.sync == nil {
		return 0, ErrNoSource
	}
	for ctx.Err() == nil {
		sum, err := c.sync.ProcessBatch(ctx)
		if err != nil {
			return applied, err
		}
		applied += sum.OK
		if sum.OK+sum.Retried+sum.Dead == 0 {
			return applied, nil
		}
	}
	return applied, ctx.Err()
}
