// Package spy implements espionage: recruitment, training, intelligence
// missions, sabotage, and counter-intelligence.
package spy

import (
	"context"
	"errors"
	"time"
)

// Spy statuses. Retired spies keep their record but leave the roster
// and stop counting against the cap.
const (
	StatusAvailable   = "available"
	StatusOnMission   = "on_mission"
	StatusCompromised = "compromised"
	StatusRetired     = "retired"
)

// Mission statuses. active -> completed|failed|compromised is a
// conditional transition; zero rows surfaces as ErrConflict. A mission
// ends compromised when the spy is caught, whatever the objective roll
// said.
const (
	MissionActive      = "active"
	MissionCompleted   = "completed"
	MissionFailed      = "failed"
	MissionCompromised = "compromised"
)

// Ranks in promotion order.
var Ranks = []string{"ROOKIE", "OPERATIVE", "AGENT", "VETERAN", "ELITE"}

// Skills every spy carries.
var Skills = []string{"stealth", "hacking", "sabotage", "intelligence"}

var (
	ErrSpyNotFound           = errors.New("spy not found")
	ErrMissionNotFound       = errors.New("mission not found")
	ErrSpyCapReached         = errors.New("spy cap reached for research tier")
	ErrUnknownSpecialization = errors.New("unknown specialization")
	ErrUnknownSkill          = errors.New("unknown skill")
	ErrUnknownIntensity      = errors.New("unknown training intensity")
	ErrUnknownMissionType    = errors.New("unknown mission type")
	ErrSpyUnavailable        = errors.New("spy is not available")
	ErrSpyRetired            = errors.New("spy is retired")
	ErrSkillTooLow           = errors.New("spy does not meet the skill minimum")
	ErrOwnClanTarget         = errors.New("cannot run missions against your own clan")
	ErrNotSpyOwner           = errors.New("spy belongs to another player")
	ErrConflict              = errors.New("mission already resolved by another process")
)

// Spy is a clan-funded intelligence operative.
type Spy struct {
	ID                string         `json:"id"`
	OwnerID           string         `json:"ownerId"`
	ClanID            string         `json:"clanId"`
	Codename          string         `json:"codename"`
	Specialization    string         `json:"specialization"`
	Rank              string         `json:"rank"`
	Skills            map[string]int `json:"skills"`
	Experience        int            `json:"experience"`
	MissionsCompleted int            `json:"missionsCompleted"`
	Status            string         `json:"status"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Skill returns a skill level, zero for unknown names.
func (s *Spy) Skill(name string) int { return s.Skills[name] }

// Mission is one scheduled intelligence operation.
type Mission struct {
	ID            string     `json:"id"`
	SpyID         string     `json:"spyId"`
	ClanID        string     `json:"clanId"`
	Type          string     `json:"type"`
	TargetID      string     `json:"targetId"`
	TargetClan    string     `json:"targetClan"`
	Status        string     `json:"status"`
	SuccessChance float64    `json:"successChance"`
	DetectionRisk float64    `json:"detectionRisk"`
	Detected      bool       `json:"detected"`
	Report        any        `json:"report,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	ResolvesAt    time.Time  `json:"resolvesAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
}

// SabotageResult reports an immediate sabotage attempt.
type SabotageResult struct {
	Success           bool    `json:"success"`
	Chance            float64 `json:"chance"`
	ComponentsRemoved int     `json:"componentsRemoved,omitempty"`
	MetalWasted       int64   `json:"metalWasted,omitempty"`
	EnergyWasted      int64   `json:"energyWasted,omitempty"`
	Detected          bool    `json:"detected"`
	Compromised       bool    `json:"compromised"`
}

// Store persists spies and missions.
type Store interface {
	CreateSpy(ctx context.Context, s *Spy) error
	GetSpy(ctx context.Context, spyID string) (*Spy, error)
	PutSpy(ctx context.Context, s *Spy) error
	ListSpiesByOwner(ctx context.Context, ownerID string) ([]*Spy, error)
	// CountSpiesByOwner counts the spies held against the roster cap;
	// retired spies are excluded.
	CountSpiesByOwner(ctx context.Context, ownerID string) (int, error)

	CreateMission(ctx context.Context, m *Mission) error
	GetMission(ctx context.Context, missionID string) (*Mission, error)

	// ResolveMission transitions active -> completed|failed|compromised,
	// recording the detection flag and report. ErrConflict when another
	// process already resolved it.
	ResolveMission(ctx context.Context, missionID, to string, detected bool, report any, at time.Time) error

	ListDueMissions(ctx context.Context, now time.Time) ([]*Mission, error)
	ListActiveMissionsByTargetClan(ctx context.Context, clanID string) ([]*Mission, error)
	// ListMissionsBySpy returns a spy's missions, newest first.
	ListMissionsBySpy(ctx context.Context, spyID string) ([]*Mission, error)
}

// NextRank returns the rank after the given one, or "" at the top.
func NextRank(rank string) string {
	for i, r := range Ranks {
		if r == rank && i+1 < len(Ranks) {
			return Ranks[i+1]
		}
	}
	return ""
}

func validSkill(name string) bool {
	for _, s := range Skills {
		if s == name {
			return true
		}
	}
	return false
}
