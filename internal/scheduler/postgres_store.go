package scheduler

import (
	"context"
	"database/sql"
)

// PostgresRunStore persists sweep run records in PostgreSQL.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore creates a new PostgreSQL-backed run store.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

func (p *PostgresRunStore) RecordRun(ctx context.Context, r *Run) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scheduler_runs
			(id, family, started_at, finished_at, processed, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
		r.ID, r.Family, r.StartedAt, r.FinishedAt, r.Processed, r.Failed, r.Error,
	)
	return err
}

func (p *PostgresRunStore) LastRun(ctx context.Context, family string) (*Run, error) {
	r := &Run{}
	var errMsg sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT id, family, started_at, finished_at, processed, failed, error
		FROM scheduler_runs
		WHERE family = $1
		ORDER BY started_at DESC
		LIMIT 1`, family,
	).Scan(&r.ID, &r.Family, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Failed, &errMsg)
	if err == sql.ErrNoRows {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return r, nil
}
