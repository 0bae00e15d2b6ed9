// Package clans provides clan membership, leadership, and player base assets
// for the warfare services.
//
// Clan and player records are owned by the wider game; this package exposes
// the slice the WMD subsystem needs: member counts for cost sharing, leader
// identity for vetoes, research tiers for spy caps, and base assets (unit
// rosters, factories, stockpiles) as damage and intelligence targets.
package clans

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClanNotFound   = errors.New("clan not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrBaseNotFound   = errors.New("base not found")
)

// Actor is the verified caller identity supplied by the auth layer.
type Actor struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	ClanID   string `json:"clanId"`
}

// Clan is the membership slice of a clan record.
type Clan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LeaderID     string    `json:"leaderId"`
	MemberIDs    []string  `json:"memberIds"`
	ResearchTier int       `json:"researchTier"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MemberCount returns the number of members.
func (c *Clan) MemberCount() int { return len(c.MemberIDs) }

// IsMember reports whether the player belongs to the clan.
func (c *Clan) IsMember(playerID string) bool {
	for _, id := range c.MemberIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

// Factory is a production building on a player's base.
type Factory struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Disabled      bool       `json:"disabled"`
	DisabledUntil *time.Time `json:"disabledUntil,omitempty"`
}

// Base holds a player's destructible assets.
type Base struct {
	PlayerID      string         `json:"playerId"`
	ClanID        string         `json:"clanId"`
	Units         map[string]int `json:"units"` // unit type -> count
	Factories     []Factory      `json:"factories"`
	MetalStock    int64          `json:"metalStock"`
	EnergyStock   int64          `json:"energyStock"`
	SecurityLevel float64        `json:"securityLevel"` // 0..1, hardens against espionage
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// UnitCount returns the total roster size.
func (b *Base) UnitCount() int {
	total := 0
	for _, n := range b.Units {
		total += n
	}
	return total
}

// Store persists clan and base records.
type Store interface {
	GetClan(ctx context.Context, clanID string) (*Clan, error)
	PutClan(ctx context.Context, clan *Clan) error
	GetBase(ctx context.Context, playerID string) (*Base, error)
	PutBase(ctx context.Context, base *Base) error
}
