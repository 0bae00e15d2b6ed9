// Package treasury implements the clan war chest.
//
// Every funded operation in the warfare subsystem (missiles, batteries,
// spies) flows through the same debit primitive, which is atomic per clan:
// two concurrent purchases can never jointly overspend a shared balance.
// The per-member cost share is computed for transparency messaging only;
// the clan treasury is debited as a whole.
package treasury

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/warclan/internal/gamedata"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient treasury funds")
	ErrClanTooSmall        = errors.New("clan below minimum size for war funding")
	ErrTreasuryNotFound    = errors.New("treasury not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrInvalidCost         = errors.New("invalid cost")
)

// Treasury holds a clan's two resource balances.
type Treasury struct {
	ClanID    string    `json:"clanId"`
	Metal     int64     `json:"metal"`
	Energy    int64     `json:"energy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transaction is an immutable record of a funded operation. It is never
// mutated after creation except to mark the refund.
type Transaction struct {
	ID              string     `json:"id"`
	ClanID          string     `json:"clanId"`
	PurchaseType    string     `json:"purchaseType"`
	RequesterID     string     `json:"requesterId"`
	RequesterName   string     `json:"requesterName"`
	Metal           int64      `json:"metal"`
	Energy          int64      `json:"energy"`
	PerMemberMetal  int64      `json:"perMemberMetal"`
	PerMemberEnergy int64      `json:"perMemberEnergy"`
	MemberCount     int        `json:"memberCount"`
	Description     string     `json:"description,omitempty"`
	Refunded        bool       `json:"refunded"`
	RefundReason    string     `json:"refundReason,omitempty"`
	RefundedAt      *time.Time `json:"refundedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Quote reports the outcome of a funds validation.
type Quote struct {
	MemberCount     int   `json:"memberCount"`
	PerMemberMetal  int64 `json:"perMemberMetal"`
	PerMemberEnergy int64 `json:"perMemberEnergy"`
	ShortfallMetal  int64 `json:"shortfallMetal,omitempty"`
	ShortfallEnergy int64 `json:"shortfallEnergy,omitempty"`
}

// Store persists treasuries and transaction records.
//
// DebitIfSufficient must be atomic with respect to concurrent debits against
// the same clan: decrement only when both balances cover the cost, in a
// single conditional step.
type Store interface {
	GetTreasury(ctx context.Context, clanID string) (*Treasury, error)
	Credit(ctx context.Context, clanID string, metal, energy int64) error
	DebitIfSufficient(ctx context.Context, clanID string, metal, energy int64) error
	AppendTransaction(ctx context.Context, txn *Transaction) error
	GetTransaction(ctx context.Context, txnID string) (*Transaction, error)
	MarkRefunded(ctx context.Context, txnID, reason string, at time.Time) error
	History(ctx context.Context, clanID string, limit int) ([]*Transaction, error)
}

// MemberCounter supplies clan membership counts for cost sharing.
type MemberCounter interface {
	MemberCount(ctx context.Context, clanID string) (int, error)
}

// perMemberShare is ceil(total / members).
func perMemberShare(total int64, members int) int64 {
	if members <= 0 {
		return total
	}
	return (total + int64(members) - 1) / int64(members)
}

// validCost rejects negative and zero costs.
func validCost(c gamedata.Cost) bool {
	return c.Metal >= 0 && c.Energy >= 0 && !c.IsZero()
}
