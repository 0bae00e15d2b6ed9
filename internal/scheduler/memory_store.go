package scheduler

import (
	"context"
	"sync"
)

// MemoryRunStore keeps sweep run records in memory for demo/development
// mode. Only the latest record per family is retained.
type MemoryRunStore struct {
	last map[string]*Run
	mu   sync.Mutex
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{last: make(map[string]*Run)}
}

func (m *MemoryRunStore) RecordRun(ctx context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.last[r.Family] = &cp
	return nil
}

func (m *MemoryRunStore) LastRun(ctx context.Context, family string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.last[family]
	if !ok {
		return nil, ErrNoRuns
	}
	cp := *r
	return &cp, nil
}
