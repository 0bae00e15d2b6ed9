package defense

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory battery store for demo/development mode.
type MemoryStore struct {
	batteries map[string]*Battery
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory battery store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batteries: make(map[string]*Battery)}
}

func (m *MemoryStore) GetBattery(ctx context.Context, batteryID string) (*Battery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batteries[batteryID]
	if !ok {
		return nil, ErrBatteryNotFound
	}
	return copyBattery(b), nil
}

func (m *MemoryStore) PutBattery(ctx context.Context, b *Battery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batteries[b.ID] = copyBattery(b)
	return nil
}

func (m *MemoryStore) DeleteBattery(ctx context.Context, batteryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.batteries[batteryID]; !ok {
		return ErrBatteryNotFound
	}
	delete(m.batteries, batteryID)
	return nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*Battery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Battery
	for _, b := range m.batteries {
		if b.OwnerID == ownerID {
			out = append(out, copyBattery(b))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListCooldownElapsed(ctx context.Context, now time.Time) ([]*Battery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Battery
	for _, b := range m.batteries {
		if b.Status == StatusCooldown && b.CooldownUntil != nil && now.After(*b.CooldownUntil) {
			out = append(out, copyBattery(b))
		}
	}
	return out, nil
}

func copyBattery(b *Battery) *Battery {
	cp := *b
	if b.CooldownUntil != nil {
		t := *b.CooldownUntil
		cp.CooldownUntil = &t
	}
	return &cp
}
