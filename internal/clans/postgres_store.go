package clans

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists clan and base data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed clan store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetClan(ctx context.Context, clanID string) (*Clan, error) {
	c := &Clan{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, leader_id, member_ids, research_tier, created_at, updated_at
		FROM clans WHERE id = $1`, clanID,
	).Scan(&c.ID, &c.Name, &c.LeaderID, pq.Array(&c.MemberIDs), &c.ResearchTier, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrClanNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgresStore) PutClan(ctx context.Context, c *Clan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clans (id, name, leader_id, member_ids, research_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name          = EXCLUDED.name,
			leader_id     = EXCLUDED.leader_id,
			member_ids    = EXCLUDED.member_ids,
			research_tier = EXCLUDED.research_tier,
			updated_at    = EXCLUDED.updated_at`,
		c.ID, c.Name, c.LeaderID, pq.Array(c.MemberIDs), c.ResearchTier, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetBase(ctx context.Context, playerID string) (*Base, error) {
	b := &Base{}
	var unitsJSON, factoriesJSON []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT player_id, clan_id, units, factories, metal_stock, energy_stock, security_level, updated_at
		FROM bases WHERE player_id = $1`, playerID,
	).Scan(&b.PlayerID, &b.ClanID, &unitsJSON, &factoriesJSON, &b.MetalStock, &b.EnergyStock, &b.SecurityLevel, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(unitsJSON, &b.Units); err != nil {
		return nil, fmt.Errorf("decode units: %w", err)
	}
	if err := json.Unmarshal(factoriesJSON, &b.Factories); err != nil {
		return nil, fmt.Errorf("decode factories: %w", err)
	}
	return b, nil
}

func (p *PostgresStore) PutBase(ctx context.Context, b *Base) error {
	unitsJSON, err := json.Marshal(b.Units)
	if err != nil {
		return fmt.Errorf("encode units: %w", err)
	}
	factoriesJSON, err := json.Marshal(b.Factories)
	if err != nil {
		return fmt.Errorf("encode factories: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO bases (player_id, clan_id, units, factories, metal_stock, energy_stock, security_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id) DO UPDATE SET
			clan_id        = EXCLUDED.clan_id,
			units          = EXCLUDED.units,
			factories      = EXCLUDED.factories,
			metal_stock    = EXCLUDED.metal_stock,
			energy_stock   = EXCLUDED.energy_stock,
			security_level = EXCLUDED.security_level,
			updated_at     = EXCLUDED.updated_at`,
		b.PlayerID, b.ClanID, unitsJSON, factoriesJSON, b.MetalStock, b.EnergyStock, b.SecurityLevel, b.UpdatedAt,
	)
	return err
}
