package engine

import (
	"context"
	"sync"

	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// MemBackend is a thread-safe in-memory Backend. Logs are copied on the way
// in and out, so callers never alias stored state.
type MemBackend struct {
	mu        sync.RWMutex
	logs      map[string][]schema.EventRecord
	retention uint32
}

// NewMemBackend initializes a MemBackend, optionally seeded with existing logs.
func NewMemBackend(initial map[string][]schema.EventRecord) *MemBackend {
	logs := make(map[string][]schema.EventRecord, len(initial))
	for actor, records := range initial {
		logs[actor] = schema.CloneRecords(records)
	}
	return &MemBackend{logs: logs}
}

func (m *MemBackend) GetLog(_ context.Context, actor string) ([]schema.EventRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.logs[actor]
	if !ok {
		return nil, false, nil
	}
	return schema.CloneRecords(records), true, nil
}

func (m *MemBackend) SetLog(_ context.Context, actor string, records []schema.EventRecord) error {
	c := schema.CloneRecords(records)
	if c == nil {
		c = []schema.EventRecord{}
	}
	m.mu.Lock()
	m.logs[actor] = c
	m.mu.Unlock()
	return nil
}

func (m *MemBackend) GetRetention(context.Context) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retention, nil
}

func (m *MemBackend) SetRetention(_ context.Context, n uint32) error {
	m.mu.Lock()
	m.retention = n
	m.mu.Unlock()
	return nil
}

func (m *MemBackend) Actors(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.logs))
	for actor := range m.logs {
		list = append(list, actor)
	}
	return list, nil
}

func (m *MemBackend) Close() error { return nil }
