package spy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists spies and missions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed spy store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateSpy(ctx context.Context, s *Spy) error {
	skills, err := json.Marshal(s.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO spies
			(id, owner_id, clan_id, codename, specialization, rank, skills,
			 experience, missions_completed, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.OwnerID, s.ClanID, s.Codename, s.Specialization, s.Rank, skills,
		s.Experience, s.MissionsCompleted, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetSpy(ctx context.Context, spyID string) (*Spy, error) {
	s := &Spy{}
	var skills []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT id, owner_id, clan_id, codename, specialization, rank, skills,
		       experience, missions_completed, status, created_at, updated_at
		FROM spies WHERE id = $1`, spyID,
	).Scan(&s.ID, &s.OwnerID, &s.ClanID, &s.Codename, &s.Specialization, &s.Rank, &skills,
		&s.Experience, &s.MissionsCompleted, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSpyNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(skills, &s.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) PutSpy(ctx context.Context, s *Spy) error {
	skills, err := json.Marshal(s.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE spies SET
			rank               = $2,
			skills             = $3,
			experience         = $4,
			missions_completed = $5,
			status             = $6,
			updated_at         = $7
		WHERE id = $1`,
		s.ID, s.Rank, skills, s.Experience, s.MissionsCompleted, s.Status, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSpyNotFound
	}
	return nil
}

func (p *PostgresStore) ListSpiesByOwner(ctx context.Context, ownerID string) ([]*Spy, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, clan_id, codename, specialization, rank, skills,
		       experience, missions_completed, status, created_at, updated_at
		FROM spies WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Spy
	for rows.Next() {
		s := &Spy{}
		var skills []byte
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.ClanID, &s.Codename, &s.Specialization, &s.Rank, &skills,
			&s.Experience, &s.MissionsCompleted, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(skills, &s.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountSpiesByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spies WHERE owner_id = $1 AND status <> 'retired'`, ownerID).Scan(&count)
	return count, err
}

func (p *PostgresStore) CreateMission(ctx context.Context, m *Mission) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO spy_missions
			(id, spy_id, clan_id, type, target_id, target_clan, status,
			 success_chance, detection_risk, detected, started_at, resolves_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11)`,
		m.ID, m.SpyID, m.ClanID, m.Type, m.TargetID, m.TargetClan, m.Status,
		m.SuccessChance, m.DetectionRisk, m.StartedAt, m.ResolvesAt,
	)
	return err
}

func (p *PostgresStore) GetMission(ctx context.Context, missionID string) (*Mission, error) {
	m, err := scanMission(p.db.QueryRowContext(ctx, `
		SELECT `+missionColumns+` FROM spy_missions WHERE id = $1`, missionID))
	if err == sql.ErrNoRows {
		return nil, ErrMissionNotFound
	}
	return m, err
}

func (p *PostgresStore) ResolveMission(ctx context.Context, missionID, to string, detected bool, report any, at time.Time) error {
	var reportJSON []byte
	if report != nil {
		var err error
		reportJSON, err = json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE spy_missions
		SET status = $2, detected = $3, report = $4, resolved_at = $5
		WHERE id = $1 AND status = 'active'`,
		missionID, to, detected, reportJSON, at,
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
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM spy_missions WHERE id = $1)`, missionID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrMissionNotFound
		}
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) ListDueMissions(ctx context.Context, now time.Time) ([]*Mission, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+missionColumns+` FROM spy_missions
		WHERE status = 'active' AND resolves_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

func (p *PostgresStore) ListActiveMissionsByTargetClan(ctx context.Context, clanID string) ([]*Mission, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+missionColumns+` FROM spy_missions
		WHERE status = 'active' AND target_clan = $1`, clanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

func (p *PostgresStore) ListMissionsBySpy(ctx context.Context, spyID string) ([]*Mission, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+missionColumns+` FROM spy_missions
		WHERE spy_id = $1 ORDER BY started_at DESC`, spyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMissions(rows)
}

const missionColumns = `id, spy_id, clan_id, type, target_id, target_clan, status,
	success_chance, detection_risk, detected, report, started_at, resolves_at, resolved_at`

func scanMission(row interface{ Scan(...any) error }) (*Mission, error) {
	m := &Mission{}
	var report []byte
	var resolvedAt sql.NullTime
	err := row.Scan(&m.ID, &m.SpyID, &m.ClanID, &m.Type, &m.TargetID, &m.TargetClan, &m.Status,
		&m.SuccessChance, &m.DetectionRisk, &m.Detected, &report, &m.StartedAt, &m.ResolvesAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if len(report) > 0 {
		var decoded any
		if err := json.Unmarshal(report, &decoded); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		m.Report = decoded
	}
	if resolvedAt.Valid {
		m.ResolvedAt = &resolvedAt.Time
	}
	return m, nil
}

func collectMissions(rows *sql.Rows) ([]*Mission, error) {
	var out []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
