package treasury

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists treasuries and transactions in PostgreSQL.
//
// The debit uses a single conditional UPDATE so the balance check and the
// decrement happen in one atomic statement; the database serializes
// concurrent debits against the same row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed treasury store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetTreasury(ctx context.Context, clanID string) (*Treasury, error) {
	t := &Treasury{}
	err := p.db.QueryRowContext(ctx, `
		SELECT clan_id, metal, energy, updated_at
		FROM clan_treasuries WHERE clan_id = $1`, clanID,
	).Scan(&t.ClanID, &t.Metal, &t.Energy, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTreasuryNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresStore) Credit(ctx context.Context, clanID string, metal, energy int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clan_treasuries (clan_id, metal, energy, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (clan_id) DO UPDATE SET
			metal      = clan_treasuries.metal + EXCLUDED.metal,
			energy     = clan_treasuries.energy + EXCLUDED.energy,
			updated_at = NOW()`,
		clanID, metal, energy,
	)
	return err
}

func (p *PostgresStore) DebitIfSufficient(ctx context.Context, clanID string, metal, energy int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE clan_treasuries
		SET metal = metal - $2, energy = energy - $3, updated_at = NOW()
		WHERE clan_id = $1 AND metal >= $2 AND energy >= $3`,
		clanID, metal, energy,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Zero rows means either the treasury is missing or the guard
		// failed; look up which.
		var exists bool
		err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM clan_treasuries WHERE clan_id = $1)`, clanID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrTreasuryNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (p *PostgresStore) AppendTransaction(ctx context.Context, txn *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO treasury_transactions
			(id, clan_id, purchase_type, requester_id, requester_name,
			 metal, energy, per_member_metal, per_member_energy, member_count,
			 description, refunded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12)`,
		txn.ID, txn.ClanID, txn.PurchaseType, txn.RequesterID, txn.RequesterName,
		txn.Metal, txn.Energy, txn.PerMemberMetal, txn.PerMemberEnergy, txn.MemberCount,
		txn.Description, txn.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetTransaction(ctx context.Context, txnID string) (*Transaction, error) {
	txn := &Transaction{}
	var reason sql.NullString
	var refundedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, clan_id, purchase_type, requester_id, requester_name,
		       metal, energy, per_member_metal, per_member_energy, member_count,
		       description, refunded, refund_reason, refunded_at, created_at
		FROM treasury_transactions WHERE id = $1`, txnID,
	).Scan(&txn.ID, &txn.ClanID, &txn.PurchaseType, &txn.RequesterID, &txn.RequesterName,
		&txn.Metal, &txn.Energy, &txn.PerMemberMetal, &txn.PerMemberEnergy, &txn.MemberCount,
		&txn.Description, &txn.Refunded, &reason, &refundedAt, &txn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	txn.RefundReason = reason.String
	if refundedAt.Valid {
		txn.RefundedAt = &refundedAt.Time
	}
	return txn, nil
}

func (p *PostgresStore) MarkRefunded(ctx context.Context, txnID, reason string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE treasury_transactions
		SET refunded = TRUE, refund_reason = $2, refunded_at = $3
		WHERE id = $1 AND refunded = FALSE`,
		txnID, reason, at,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM treasury_transactions WHERE id = $1)`, txnID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrTransactionNotFound
		}
		return ErrAlreadyRefunded
	}
	return nil
}

func (p *PostgresStore) History(ctx context.Context, clanID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, clan_id, purchase_type, requester_id, requester_name,
		       metal, energy, per_member_metal, per_member_energy, member_count,
		       description, refunded, refund_reason, refunded_at, created_at
		FROM treasury_transactions
		WHERE clan_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, clanID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		txn := &Transaction{}
		var reason sql.NullString
		var refundedAt sql.NullTime
		if err := rows.Scan(&txn.ID, &txn.ClanID, &txn.PurchaseType, &txn.RequesterID, &txn.RequesterName,
			&txn.Metal, &txn.Energy, &txn.PerMemberMetal, &txn.PerMemberEnergy, &txn.MemberCount,
			&txn.Description, &txn.Refunded, &reason, &refundedAt, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.RefundReason = reason.String
		if refundedAt.Valid {
			txn.RefundedAt = &refundedAt.Time
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
