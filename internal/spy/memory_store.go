package spy

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory spy store for demo/development mode.
type MemoryStore struct {
	spies    map[string]*Spy
	missions map[string]*Mission
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory spy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spies:    make(map[string]*Spy),
		missions: make(map[string]*Mission),
	}
}

func (m *MemoryStore) CreateSpy(ctx context.Context, s *Spy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.spies[s.ID] = copySpy(s)
	return nil
}

func (m *MemoryStore) GetSpy(ctx context.Context, spyID string) (*Spy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spies[spyID]
	if !ok {
		return nil, ErrSpyNotFound
	}
	return copySpy(s), nil
}

func (m *MemoryStore) PutSpy(ctx context.Context, s *Spy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.spies[s.ID]; !ok {
		return ErrSpyNotFound
	}
	m.spies[s.ID] = copySpy(s)
	return nil
}

func (m *MemoryStore) ListSpiesByOwner(ctx context.Context, ownerID string) ([]*Spy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Spy
	for _, s := range m.spies {
		if s.OwnerID == ownerID {
			out = append(out, copySpy(s))
		}
	}
	return out, nil
}

func (m *MemoryStore) CountSpiesByOwner(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, s := range m.spies {
		if s.OwnerID == ownerID && s.Status != StatusRetired {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateMission(ctx context.Context, mission *Mission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.missions[mission.ID] = copyMission(mission)
	return nil
}

func (m *MemoryStore) GetMission(ctx context.Context, missionID string) (*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mission, ok := m.missions[missionID]
	if !ok {
		return nil, ErrMissionNotFound
	}
	return copyMission(mission), nil
}

func (m *MemoryStore) ResolveMission(ctx context.Context, missionID, to string, detected bool, report any, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mission, ok := m.missions[missionID]
	if !ok {
		return ErrMissionNotFound
	}
	if mission.Status != MissionActive {
		return ErrConflict
	}
	mission.Status = to
	mission.Detected = detected
	mission.Report = report
	mission.ResolvedAt = &at
	return nil
}

func (m *MemoryStore) ListDueMissions(ctx context.Context, now time.Time) ([]*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Mission
	for _, mission := range m.missions {
		if mission.Status == MissionActive && !mission.ResolvesAt.After(now) {
			out = append(out, copyMission(mission))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListActiveMissionsByTargetClan(ctx context.Context, clanID string) ([]*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Mission
	for _, mission := range m.missions {
		if mission.Status == MissionActive && mission.TargetClan == clanID {
			out = append(out, copyMission(mission))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListMissionsBySpy(ctx context.Context, spyID string) ([]*Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Mission
	for _, mission := range m.missions {
		if mission.SpyID == spyID {
			out = append(out, copyMission(mission))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func copySpy(s *Spy) *Spy {
	cp := *s
	cp.Skills = make(map[string]int, len(s.Skills))
	for k, v := range s.Skills {
		cp.Skills[k] = v
	}
	return &cp
}

func copyMission(m *Mission) *Mission {
	cp := *m
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
