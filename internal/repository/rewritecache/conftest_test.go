package rewritecache

import (
	"context"
	"time"

	"github.com/fanhaiyang93/data-asset-platform-sub002/internal/db"
)

type mockRewriter struct {
	out   string
	err   error
	calls int
}

func (m *mockRewriter) Rewrite(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.out, m.err
}

type mockKVStore struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}
