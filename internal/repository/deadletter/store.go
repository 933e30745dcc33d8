// Package deadletter persists sync tasks that exhausted their retries.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/domain/synctask"
)

// Key is the Redis list holding dead letters, oldest first.
const Key = "assetsearch:sync:deadletters"

type store interface {
	RPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// Store is an append-only dead-letter log.
type Store struct {
	store store
}

// New creates a dead-letter store.
func New(s store) *Store {
	return &Store{store: s}
}

// Add appends dead letters.
func (s *Store) Add(ctx context.Context, letters ...synctask.DeadLetter) error {
	if len(letters) == 0 {
		return nil
	}
	values := make([][]byte, len(letters))
	for i, dl := range letters {
		b, err := json.Marshal(dl)
		if err != nil {
			return fmt.Errorf("marshal dead letter %s: %w", dl.Task.Ref(), err)
		}
		values[i] = b
	}
	if err := s.store.RPush(ctx, Key, values...); err != nil {
		return fmt.Errorf("push dead letters: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest dead letters, oldest first.
// A non-positive limit returns all of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]synctask.DeadLetter, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.store.LRange(ctx, Key, start, -1)
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]synctask.DeadLetter, 0, len(raw))
	for _, b := range raw {
		var dl synctask.DeadLetter
		if err := json.Unmarshal(b, &dl); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}

// Count returns the number of stored dead letters.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.store.LLen(ctx, Key)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}
