package treasury

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory treasury store for demo/development mode.
// A single mutex covers balances and transactions, which makes the
// conditional debit and the refund flag naturally atomic.
type MemoryStore struct {
	treasuries map[string]*Treasury
	txns       map[string]*Transaction
	mu         sync.Mutex
}

// NewMemoryStore creates a new in-memory treasury store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		treasuries: make(map[string]*Treasury),
		txns:       make(map[string]*Transaction),
	}
}

func (m *MemoryStore) GetTreasury(ctx context.Context, clanID string) (*Treasury, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.treasuries[clanID]
	if !ok {
		return nil, ErrTreasuryNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) Credit(ctx context.Context, clanID string, metal, energy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.treasuries[clanID]
	if !ok {
		t = &Treasury{ClanID: clanID}
		m.treasuries[clanID] = t
	}
	t.Metal += metal
	t.Energy += energy
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DebitIfSufficient(ctx context.Context, clanID string, metal, energy int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.treasuries[clanID]
	if !ok {
		return ErrTreasuryNotFound
	}
	if t.Metal < metal || t.Energy < energy {
		return ErrInsufficientFunds
	}
	t.Metal -= metal
	t.Energy -= energy
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AppendTransaction(ctx context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[txnID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) MarkRefunded(ctx context.Context, txnID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[txnID]
	if !ok {
		return ErrTransactionNotFound
	}
	if txn.Refunded {
		return ErrAlreadyRefunded
	}
	txn.Refunded = true
	txn.RefundReason = reason
	txn.RefundedAt = &at
	return nil
}

func (m *MemoryStore) History(ctx context.Context, clanID string, limit int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for _, txn := range m.txns {
		if txn.ClanID == clanID {
			cp := *txn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
