package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/traces"
)

// Ledger is the treasury service. All war purchases and refunds go
// through it.
type Ledger struct {
	store   Store
	members MemberCounter
	sink    events.Sink
}

// NewLedger creates a treasury ledger.
func NewLedger(store Store, members MemberCounter, sink events.Sink) *Ledger {
	return &Ledger{store: store, members: members, sink: sink}
}

// GetTreasury returns a clan's current balances.
func (l *Ledger) GetTreasury(ctx context.Context, clanID string) (*Treasury, error) {
	return l.store.GetTreasury(ctx, clanID)
}

// ValidateFunds checks whether a clan can afford a cost without spending
// anything. The returned quote carries the per-member share and, on
// failure, the shortfall per resource.
func (l *Ledger) ValidateFunds(ctx context.Context, clanID string, cost gamedata.Cost) (*Quote, error) {
	if !validCost(cost) {
		return nil, ErrInvalidCost
	}
	count, err := l.members.MemberCount(ctx, clanID)
	if err != nil {
		return nil, err
	}
	if count < gamedata.MinClanSize {
		return nil, ErrClanTooSmall
	}

	quote := &Quote{
		MemberCount:     count,
		PerMemberMetal:  perMemberShare(cost.Metal, count),
		PerMemberEnergy: perMemberShare(cost.Energy, count),
	}

	t, err := l.store.GetTreasury(ctx, clanID)
	if err != nil {
		return nil, err
	}
	if t.Metal < cost.Metal {
		quote.ShortfallMetal = cost.Metal - t.Metal
	}
	if t.Energy < cost.Energy {
		quote.ShortfallEnergy = cost.Energy - t.Energy
	}
	if quote.ShortfallMetal > 0 || quote.ShortfallEnergy > 0 {
		return quote, ErrInsufficientFunds
	}
	return quote, nil
}

// Debit atomically withdraws a cost from the clan treasury and records a
// transaction. Under concurrent debits against the same balance at most
// one caller wins; the rest see ErrInsufficientFunds.
func (l *Ledger) Debit(ctx context.Context, clanID, purchaseType, requesterID, requesterName, description string, cost gamedata.Cost) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "treasury.Debit",
		traces.ClanID(clanID), traces.PurchaseType(purchaseType),
		traces.CostMetal(cost.Metal), traces.CostEnergy(cost.Energy))
	defer span.End()

	if !validCost(cost) {
		return nil, ErrInvalidCost
	}
	count, err := l.members.MemberCount(ctx, clanID)
	if err != nil {
		return nil, err
	}
	if count < gamedata.MinClanSize {
		metrics.TreasuryDebitsTotal.WithLabelValues(purchaseType, "clan_too_small").Inc()
		return nil, ErrClanTooSmall
	}

	if err := l.store.DebitIfSufficient(ctx, clanID, cost.Metal, cost.Energy); err != nil {
		if err == ErrInsufficientFunds {
			metrics.TreasuryDebitsTotal.WithLabelValues(purchaseType, "insufficient").Inc()
		}
		return nil, err
	}

	txn := &Transaction{
		ID:              idgen.WithPrefix("txn"),
		ClanID:          clanID,
		PurchaseType:    purchaseType,
		RequesterID:     requesterID,
		RequesterName:   requesterName,
		Metal:           cost.Metal,
		Energy:          cost.Energy,
		PerMemberMetal:  perMemberShare(cost.Metal, count),
		PerMemberEnergy: perMemberShare(cost.Energy, count),
		MemberCount:     count,
		Description:     description,
		CreatedAt:       time.Now(),
	}
	if err := l.store.AppendTransaction(ctx, txn); err != nil {
		// The funds are already gone; restore them rather than leave a
		// debit with no record.
		if creditErr := l.store.Credit(ctx, clanID, cost.Metal, cost.Energy); creditErr != nil {
			logging.L(ctx).Error("treasury rollback failed",
				"clan_id", clanID, "error", creditErr)
		}
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	metrics.TreasuryDebitsTotal.WithLabelValues(purchaseType, "ok").Inc()
	l.publish(events.TypeTreasuryDebit, txn, 0)
	return txn, nil
}

// Refund returns a fraction of a past transaction to the clan treasury.
// A transaction can be refunded at most once; the second attempt returns
// ErrAlreadyRefunded regardless of fraction or reason.
func (l *Ledger) Refund(ctx context.Context, txnID string, fraction float64, reason string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "treasury.Refund")
	defer span.End()

	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("%w: refund fraction %v out of range", ErrInvalidCost, fraction)
	}
	txn, err := l.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}

	// Marking first makes the refund exactly-once: concurrent callers race
	// on the refunded flag, and only the winner credits the treasury.
	now := time.Now()
	if err := l.store.MarkRefunded(ctx, txnID, reason, now); err != nil {
		return nil, err
	}

	metal := int64(float64(txn.Metal) * fraction)
	energy := int64(float64(txn.Energy) * fraction)
	if err := l.store.Credit(ctx, txn.ClanID, metal, energy); err != nil {
		return nil, fmt.Errorf("credit refund: %w", err)
	}

	txn.Refunded = true
	txn.RefundReason = reason
	txn.RefundedAt = &now

	metrics.TreasuryRefundsTotal.Inc()
	l.publish(events.TypeTreasuryRefund, txn, fraction)
	return txn, nil
}

// Credit adds resources to a clan treasury, creating it if absent.
func (l *Ledger) Credit(ctx context.Context, clanID string, metal, energy int64) error {
	if metal < 0 || energy < 0 {
		return ErrInvalidCost
	}
	return l.store.Credit(ctx, clanID, metal, energy)
}

// History returns a clan's most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, clanID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.store.History(ctx, clanID, limit)
}

func (l *Ledger) publish(eventType events.Type, txn *Transaction, fraction float64) {
	if l.sink == nil {
		return
	}
	l.sink.Publish(events.New(eventType, events.TreasuryData{
		TransactionID:   txn.ID,
		ClanID:          txn.ClanID,
		PurchaseType:    txn.PurchaseType,
		MetalCost:       txn.Metal,
		EnergyCost:      txn.Energy,
		PerMemberMetal:  txn.PerMemberMetal,
		PerMemberEnergy: txn.PerMemberEnergy,
		RefundFraction:  fraction,
	}, txn.ClanID))
}
