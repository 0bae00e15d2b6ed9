package voting

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory vote store for demo/development mode.
type MemoryStore struct {
	votes map[string]*Vote
	mu    sync.Mutex
}

// NewMemoryStore creates a new in-memory vote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{votes: make(map[string]*Vote)}
}

func (m *MemoryStore) Create(ctx context.Context, v *Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.votes[v.ID] = copyVote(v)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, voteID string) (*Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[voteID]
	if !ok {
		return nil, ErrVoteNotFound
	}
	return copyVote(v), nil
}

func (m *MemoryStore) ListByClan(ctx context.Context, clanID string) ([]*Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Vote
	for _, v := range m.votes {
		if v.ClanID == clanID {
			out = append(out, copyVote(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) AddBallot(ctx context.Context, voteID, voterID string, inFavor bool) (*Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[voteID]
	if !ok {
		return nil, ErrVoteNotFound
	}
	if v.Status != StatusActive {
		return nil, ErrVoteNotActive
	}
	if v.HasVoted(voterID) {
		return nil, ErrAlreadyVoted
	}
	if inFavor {
		v.ForVoters = append(v.ForVoters, voterID)
	} else {
		v.AgainstVoters = append(v.AgainstVoters, voterID)
	}
	return copyVote(v), nil
}

func (m *MemoryStore) Resolve(ctx context.Context, voteID, to string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[voteID]
	if !ok {
		return ErrVoteNotFound
	}
	if v.Status != StatusActive {
		return ErrConflict
	}
	v.Status = to
	v.ResolvedAt = &at
	return nil
}

func (m *MemoryStore) Veto(ctx context.Context, voteID, leaderID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.votes[voteID]
	if !ok {
		return ErrVoteNotFound
	}
	if v.Status != StatusActive {
		return ErrConflict
	}
	v.Status = StatusVetoed
	v.VetoedBy = leaderID
	v.VetoReason = reason
	v.ResolvedAt = &at
	return nil
}

func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time) ([]*Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Vote
	for _, v := range m.votes {
		if v.Status == StatusActive && !v.ExpiresAt.After(now) {
			out = append(out, copyVote(v))
		}
	}
	return out, nil
}

func copyVote(v *Vote) *Vote {
	cp := *v
	cp.ForVoters = append([]string(nil), v.ForVoters...)
	cp.AgainstVoters = append([]string(nil), v.AgainstVoters...)
	if v.Details != nil {
		cp.Details = make(map[string]any, len(v.Details))
		for k, val := range v.Details {
			cp.Details[k] = val
		}
	}
	if v.ResolvedAt != nil {
		t := *v.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
