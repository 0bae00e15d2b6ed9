package defense

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists batteries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed battery store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const batteryColumns = `id, owner_id, clan_id, type, tier, intercept_chance,
	health, status, cooldown_until, attempts, kills, created_at, updated_at`

func scanBattery(row interface{ Scan(...any) error }) (*Battery, error) {
	b := &Battery{}
	var cooldown sql.NullTime
	err := row.Scan(&b.ID, &b.OwnerID, &b.ClanID, &b.Type, &b.Tier, &b.InterceptChance,
		&b.Health, &b.Status, &cooldown, &b.Attempts, &b.Kills, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cooldown.Valid {
		b.CooldownUntil = &cooldown.Time
	}
	return b, nil
}

func (p *PostgresStore) GetBattery(ctx context.Context, batteryID string) (*Battery, error) {
	b, err := scanBattery(p.db.QueryRowContext(ctx,
		`SELECT `+batteryColumns+` FROM defense_batteries WHERE id = $1`, batteryID))
	if err == sql.ErrNoRows {
		return nil, ErrBatteryNotFound
	}
	return b, err
}

func (p *PostgresStore) PutBattery(ctx context.Context, b *Battery) error {
	var cooldown sql.NullTime
	if b.CooldownUntil != nil {
		cooldown = sql.NullTime{Time: *b.CooldownUntil, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO defense_batteries
			(id, owner_id, clan_id, type, tier, intercept_chance,
			 health, status, cooldown_until, attempts, kills, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			health         = EXCLUDED.health,
			status         = EXCLUDED.status,
			cooldown_until = EXCLUDED.cooldown_until,
			attempts       = EXCLUDED.attempts,
			kills          = EXCLUDED.kills,
			updated_at     = EXCLUDED.updated_at`,
		b.ID, b.OwnerID, b.ClanID, b.Type, b.Tier, b.InterceptChance,
		b.Health, b.Status, cooldown, b.Attempts, b.Kills, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) DeleteBattery(ctx context.Context, batteryID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM defense_batteries WHERE id = $1`, batteryID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBatteryNotFound
	}
	return nil
}

func (p *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*Battery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+batteryColumns+` FROM defense_batteries WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatteries(rows)
}

func (p *PostgresStore) ListCooldownElapsed(ctx context.Context, now time.Time) ([]*Battery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+batteryColumns+` FROM defense_batteries
		 WHERE status = 'cooldown' AND cooldown_until IS NOT NULL AND cooldown_until < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatteries(rows)
}

func collectBatteries(rows *sql.Rows) ([]*Battery, error) {
	var out []*Battery
	for rows.Next() {
		b, err := scanBattery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
