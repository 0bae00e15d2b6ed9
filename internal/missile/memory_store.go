package missile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory missile store for demo/development mode.
// One mutex covers all missiles, which makes the conditional transitions
// naturally atomic.
type MemoryStore struct {
	missiles map[string]*Missile
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory missile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{missiles: make(map[string]*Missile)}
}

func (m *MemoryStore) Create(ctx context.Context, missile *Missile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.missiles[missile.ID] = copyMissile(missile)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, missileID string) (*Missile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return nil, ErrMissileNotFound
	}
	return copyMissile(missile), nil
}

func (m *MemoryStore) ListByClan(ctx context.Context, clanID string) ([]*Missile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Missile
	for _, missile := range m.missiles {
		if missile.ClanID == clanID {
			out = append(out, copyMissile(missile))
		}
	}
	return out, nil
}

func (m *MemoryStore) InstallComponent(ctx context.Context, missileID, component, txnID string, metal, energy int64) (*Missile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return nil, ErrMissileNotFound
	}
	if missile.Status != StatusAssembling {
		return nil, ErrInvalidState
	}
	if missile.Components[component] {
		return nil, ErrComponentInstalled
	}

	missile.Components[component] = true
	missile.TransactionIDs = append(missile.TransactionIDs, txnID)
	missile.SpentMetal += metal
	missile.SpentEnergy += energy
	if missile.InstalledCount() == len(Components) {
		missile.Status = StatusReady
	}
	missile.UpdatedAt = time.Now()
	return copyMissile(missile), nil
}

func (m *MemoryStore) MarkLaunched(ctx context.Context, missileID, targetID string, launchedAt, impactAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return ErrMissileNotFound
	}
	if missile.Status != StatusReady {
		return ErrNotReady
	}
	missile.Status = StatusLaunched
	missile.TargetID = targetID
	missile.LaunchedAt = &launchedAt
	missile.ImpactAt = &impactAt
	missile.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkTerminal(ctx context.Context, missileID, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return ErrMissileNotFound
	}
	if missile.Status != StatusLaunched {
		return ErrConflict
	}
	missile.Status = to
	missile.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkDisarmed(ctx context.Context, missileID string, allowed []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return "", ErrMissileNotFound
	}
	for _, status := range allowed {
		if missile.Status == status {
			prev := missile.Status
			missile.Status = StatusDisarmed
			missile.UpdatedAt = time.Now()
			return prev, nil
		}
	}
	if missile.Terminal() {
		return "", ErrConflict
	}
	return "", ErrInvalidState
}

func (m *MemoryStore) SetComponents(ctx context.Context, missileID string, components map[string]bool, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	missile, ok := m.missiles[missileID]
	if !ok {
		return ErrMissileNotFound
	}
	if missile.Status != StatusAssembling && missile.Status != StatusReady {
		return ErrInvalidState
	}
	missile.Components = make(map[string]bool, len(components))
	for k, v := range components {
		missile.Components[k] = v
	}
	missile.Status = status
	missile.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListDueForImpact(ctx context.Context, now time.Time) ([]*Missile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Missile
	for _, missile := range m.missiles {
		if missile.Status == StatusLaunched && missile.ImpactAt != nil && !missile.ImpactAt.After(now) {
			out = append(out, copyMissile(missile))
		}
	}
	return out, nil
}

func copyMissile(m *Missile) *Missile {
	cp := *m
	cp.Components = make(map[string]bool, len(m.Components))
	for k, v := range m.Components {
		cp.Components[k] = v
	}
	cp.TransactionIDs = make([]string, len(m.TransactionIDs))
	copy(cp.TransactionIDs, m.TransactionIDs)
	if m.LaunchedAt != nil {
		t := *m.LaunchedAt
		cp.LaunchedAt = &t
	}
	if m.ImpactAt != nil {
		t := *m.ImpactAt
		cp.ImpactAt = &t
	}
	return &cp
}
