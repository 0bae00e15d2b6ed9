package voting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists votes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed vote store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, v *Vote) error {
	details, err := encodeDetails(v.Details)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO votes
			(id, clan_id, type, severity, details, proposer_id, proposer_name,
			 status, for_voters, against_voters, required_votes, member_count,
			 created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.ClanID, v.Type, v.Severity, details, v.ProposerID, v.ProposerName,
		v.Status, pq.Array(v.ForVoters), pq.Array(v.AgainstVoters),
		v.RequiredVotes, v.MemberCount, v.CreatedAt, v.ExpiresAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, voteID string) (*Vote, error) {
	v, err := scanVote(p.db.QueryRowContext(ctx, `
		SELECT `+voteColumns+` FROM votes WHERE id = $1`, voteID))
	if err == sql.ErrNoRows {
		return nil, ErrVoteNotFound
	}
	return v, err
}

func (p *PostgresStore) ListByClan(ctx context.Context, clanID string) ([]*Vote, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+voteColumns+` FROM votes
		WHERE clan_id = $1 ORDER BY created_at DESC`, clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVotes(rows)
}

// AddBallot appends the voter in a single conditional UPDATE so the
// active check and the double-vote check are atomic with the append.
func (p *PostgresStore) AddBallot(ctx context.Context, voteID, voterID string, inFavor bool) (*Vote, error) {
	v, err := scanVote(p.db.QueryRowContext(ctx, `
		UPDATE votes SET
			for_voters     = CASE WHEN $3 THEN array_append(for_voters, $2) ELSE for_voters END,
			against_voters = CASE WHEN $3 THEN against_voters ELSE array_append(against_voters, $2) END
		WHERE id = $1
		  AND status = 'active'
		  AND NOT ($2 = ANY(for_voters))
		  AND NOT ($2 = ANY(against_voters))
		RETURNING `+voteColumns, voteID, voterID, inFavor))
	if err == sql.ErrNoRows {
		return nil, p.ballotFailure(ctx, voteID, voterID)
	}
	return v, err
}

// ballotFailure figures out why a ballot update matched nothing.
func (p *PostgresStore) ballotFailure(ctx context.Context, voteID, voterID string) error {
	var status string
	var voted bool
	err := p.db.QueryRowContext(ctx, `
		SELECT status, $2 = ANY(for_voters) OR $2 = ANY(against_voters)
		FROM votes WHERE id = $1`, voteID, voterID).Scan(&status, &voted)
	if err == sql.ErrNoRows {
		return ErrVoteNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusActive {
		return ErrVoteNotActive
	}
	if voted {
		return ErrAlreadyVoted
	}
	return ErrConflict
}

func (p *PostgresStore) Resolve(ctx context.Context, voteID, to string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE votes SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'active'`, voteID, to, at)
	if err != nil {
		return err
	}
	return p.classifyZeroRows(ctx, res, voteID)
}

func (p *PostgresStore) Veto(ctx context.Context, voteID, leaderID, reason string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE votes SET status = 'vetoed', vetoed_by = $2, veto_reason = $3, resolved_at = $4
		WHERE id = $1 AND status = 'active'`, voteID, leaderID, reason, at)
	if err != nil {
		return err
	}
	return p.classifyZeroRows(ctx, res, voteID)
}

func (p *PostgresStore) classifyZeroRows(ctx context.Context, res sql.Result, voteID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE id = $1)`, voteID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrVoteNotFound
	}
	return ErrConflict
}

func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]*Vote, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+voteColumns+` FROM votes
		WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVotes(rows)
}

const voteColumns = `id, clan_id, type, severity, details, proposer_id, proposer_name,
	status, for_voters, against_voters, required_votes, member_count,
	vetoed_by, veto_reason, created_at, expires_at, resolved_at`

func scanVote(row interface{ Scan(...any) error }) (*Vote, error) {
	v := &Vote{}
	var details []byte
	var vetoedBy, vetoReason sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&v.ID, &v.ClanID, &v.Type, &v.Severity, &details, &v.ProposerID, &v.ProposerName,
		&v.Status, pq.Array(&v.ForVoters), pq.Array(&v.AgainstVoters), &v.RequiredVotes, &v.MemberCount,
		&vetoedBy, &vetoReason, &v.CreatedAt, &v.ExpiresAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &v.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	v.VetoedBy = vetoedBy.String
	v.VetoReason = vetoReason.String
	if resolvedAt.Valid {
		v.ResolvedAt = &resolvedAt.Time
	}
	return v, nil
}

func collectVotes(rows *sql.Rows) ([]*Vote, error) {
	var out []*Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func encodeDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	return data, nil
}
