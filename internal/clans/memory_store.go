package clans

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory clan store for demo/development mode.
type MemoryStore struct {
	clans map[string]*Clan
	bases map[string]*Base
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory clan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clans: make(map[string]*Clan),
		bases: make(map[string]*Base),
	}
}

func (m *MemoryStore) GetClan(ctx context.Context, clanID string) (*Clan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clan, ok := m.clans[clanID]
	if !ok {
		return nil, ErrClanNotFound
	}
	return copyClan(clan), nil
}

func (m *MemoryStore) PutClan(ctx context.Context, clan *Clan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clans[clan.ID] = copyClan(clan)
	return nil
}

func (m *MemoryStore) GetBase(ctx context.Context, playerID string) (*Base, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	base, ok := m.bases[playerID]
	if !ok {
		return nil, ErrBaseNotFound
	}
	return copyBase(base), nil
}

func (m *MemoryStore) PutBase(ctx context.Context, base *Base) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bases[base.PlayerID] = copyBase(base)
	return nil
}

// Deep copies prevent races on shared slices and maps.

func copyClan(c *Clan) *Clan {
	cp := *c
	cp.MemberIDs = make([]string, len(c.MemberIDs))
	copy(cp.MemberIDs, c.MemberIDs)
	return &cp
}

func copyBase(b *Base) *Base {
	cp := *b
	cp.Units = make(map[string]int, len(b.Units))
	for k, v := range b.Units {
		cp.Units[k] = v
	}
	cp.Factories = make([]Factory, len(b.Factories))
	copy(cp.Factories, b.Factories)
	return &cp
}
