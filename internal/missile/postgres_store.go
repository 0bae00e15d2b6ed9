package missile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists missiles in PostgreSQL.
//
// Component flags are dedicated boolean columns so one conditional UPDATE
// can install a component, guard against a concurrent install of the same
// component, and flip the status to ready together with the fifth flag.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed missile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// componentColumn maps a component name to its column, doubling as the
// whitelist that keeps component names out of dynamic SQL.
func componentColumn(component string) (string, error) {
	for _, c := range Components {
		if c == component {
			return "comp_" + c, nil
		}
	}
	return "", ErrUnknownComponent
}

const missileColumns = `id, owner_id, clan_id, warhead_type, tier, status,
	comp_warhead, comp_propulsion, comp_guidance, comp_payload, comp_stealth,
	target_id, transaction_ids, spent_metal, spent_energy,
	launched_at, impact_at, created_at, updated_at`

func scanMissile(row interface{ Scan(...any) error }) (*Missile, error) {
	m := &Missile{Components: make(map[string]bool, len(Components))}
	var warhead, propulsion, guidance, payload, stealth bool
	var target sql.NullString
	var launchedAt, impactAt sql.NullTime
	err := row.Scan(&m.ID, &m.OwnerID, &m.ClanID, &m.WarheadType, &m.Tier, &m.Status,
		&warhead, &propulsion, &guidance, &payload, &stealth,
		&target, pq.Array(&m.TransactionIDs), &m.SpentMetal, &m.SpentEnergy,
		&launchedAt, &impactAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Components["warhead"] = warhead
	m.Components["propulsion"] = propulsion
	m.Components["guidance"] = guidance
	m.Components["payload"] = payload
	m.Components["stealth"] = stealth
	m.TargetID = target.String
	if launchedAt.Valid {
		m.LaunchedAt = &launchedAt.Time
	}
	if impactAt.Valid {
		m.ImpactAt = &impactAt.Time
	}
	return m, nil
}

func (p *PostgresStore) Create(ctx context.Context, m *Missile) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO missiles
			(id, owner_id, clan_id, warhead_type, tier, status,
			 comp_warhead, comp_propulsion, comp_guidance, comp_payload, comp_stealth,
			 transaction_ids, spent_metal, spent_energy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		m.ID, m.OwnerID, m.ClanID, m.WarheadType, m.Tier, m.Status,
		m.Components["warhead"], m.Components["propulsion"], m.Components["guidance"],
		m.Components["payload"], m.Components["stealth"],
		pq.Array(m.TransactionIDs), m.SpentMetal, m.SpentEnergy, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, missileID string) (*Missile, error) {
	m, err := scanMissile(p.db.QueryRowContext(ctx,
		`SELECT `+missileColumns+` FROM missiles WHERE id = $1`, missileID))
	if err == sql.ErrNoRows {
		return nil, ErrMissileNotFound
	}
	return m, err
}

func (p *PostgresStore) ListByClan(ctx context.Context, clanID string) ([]*Missile, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+missileColumns+` FROM missiles WHERE clan_id = $1 ORDER BY created_at DESC`, clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissiles(rows)
}

func (p *PostgresStore) InstallComponent(ctx context.Context, missileID, component, txnID string, metal, energy int64) (*Missile, error) {
	col, err := componentColumn(component)
	if err != nil {
		return nil, err
	}

	// The CASE sees the pre-update flags, so the installed column is
	// substituted with TRUE when testing for completeness.
	var readyTerms []string
	for _, c := range Components {
		if c == component {
			readyTerms = append(readyTerms, "TRUE")
		} else {
			readyTerms = append(readyTerms, "comp_"+c)
		}
	}
	query := fmt.Sprintf(`
		UPDATE missiles SET
			%s              = TRUE,
			transaction_ids = array_append(transaction_ids, $2),
			spent_metal     = spent_metal + $3,
			spent_energy    = spent_energy + $4,
			status          = CASE WHEN %s THEN 'ready' ELSE status END,
			updated_at      = NOW()
		WHERE id = $1 AND status = 'assembling' AND %s = FALSE
		RETURNING `+missileColumns,
		col, strings.Join(readyTerms, " AND "), col)

	m, err := scanMissile(p.db.QueryRowContext(ctx, query, missileID, txnID, metal, energy))
	if err == sql.ErrNoRows {
		return nil, p.installFailure(ctx, missileID, component)
	}
	return m, err
}

// installFailure classifies a zero-row install.
func (p *PostgresStore) installFailure(ctx context.Context, missileID, component string) error {
	m, err := p.Get(ctx, missileID)
	if err != nil {
		return err
	}
	if m.Status != StatusAssembling {
		return ErrInvalidState
	}
	if m.Components[component] {
		return ErrComponentInstalled
	}
	return ErrConflict
}

func (p *PostgresStore) MarkLaunched(ctx context.Context, missileID, targetID string, launchedAt, impactAt time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE missiles
		SET status = 'launched', target_id = $2, launched_at = $3, impact_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'ready'`,
		missileID, targetID, launchedAt, impactAt,
	)
	if err != nil {
		return err
	}
	return p.classifyZeroRows(ctx, res, missileID, ErrNotReady)
}

func (p *PostgresStore) MarkTerminal(ctx context.Context, missileID, to string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE missiles SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'launched'`,
		missileID, to,
	)
	if err != nil {
		return err
	}
	return p.classifyZeroRows(ctx, res, missileID, ErrConflict)
}

func (p *PostgresStore) MarkDisarmed(ctx context.Context, missileID string, allowed []string) (string, error) {
	var prev string
	err := p.db.QueryRowContext(ctx, `
		UPDATE missiles m SET status = 'disarmed', updated_at = NOW()
		FROM (SELECT id, status AS prev_status FROM missiles WHERE id = $1) old
		WHERE m.id = old.id AND m.status = ANY($2)
		RETURNING old.prev_status`,
		missileID, pq.Array(allowed),
	).Scan(&prev)
	if err == sql.ErrNoRows {
		m, getErr := p.Get(ctx, missileID)
		if getErr != nil {
			return "", getErr
		}
		if m.Terminal() {
			return "", ErrConflict
		}
		return "", ErrInvalidState
	}
	return prev, err
}

func (p *PostgresStore) SetComponents(ctx context.Context, missileID string, components map[string]bool, status string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE missiles SET
			comp_warhead    = $2,
			comp_propulsion = $3,
			comp_guidance   = $4,
			comp_payload    = $5,
			comp_stealth    = $6,
			status          = $7,
			updated_at      = NOW()
		WHERE id = $1 AND status IN ('assembling', 'ready')`,
		missileID, components["warhead"], components["propulsion"], components["guidance"],
		components["payload"], components["stealth"], status,
	)
	if err != nil {
		return err
	}
	return p.classifyZeroRows(ctx, res, missileID, ErrInvalidState)
}

func (p *PostgresStore) ListDueForImpact(ctx context.Context, now time.Time) ([]*Missile, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+missileColumns+` FROM missiles
		 WHERE status = 'launched' AND impact_at IS NOT NULL AND impact_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissiles(rows)
}

// classifyZeroRows maps a zero-row conditional update to a guard error,
// distinguishing a missing missile from a failed guard.
func (p *PostgresStore) classifyZeroRows(ctx context.Context, res sql.Result, missileID string, guardErr error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM missiles WHERE id = $1)`, missileID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrMissileNotFound
	}
	return guardErr
}

func collectMissiles(rows *sql.Rows) ([]*Missile, error) {
	var out []*Missile
	for rows.Next() {
		m, err := scanMissile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
