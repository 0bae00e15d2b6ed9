// Package defense implements defense batteries and missile interception.
package defense

import (
	"context"
	"errors"
	"time"
)

// Battery statuses. Transitions are guarded: deploy creates IDLE, an
// interception attempt moves IDLE/ACTIVE to COOLDOWN, the cooldown sweep
// moves COOLDOWN back to IDLE, and damage moves any state to DAMAGED until
// repaired.
const (
	StatusIdle     = "idle"
	StatusActive   = "active"
	StatusCooldown = "cooldown"
	StatusDamaged  = "damaged"
)

var (
	ErrBatteryNotFound    = errors.New("battery not found")
	ErrUnknownBatteryType = errors.New("unknown battery type")
	ErrNotDamaged         = errors.New("battery is not damaged")
	ErrNotOwner           = errors.New("battery belongs to another player")
)

// Battery is a player-owned interception emplacement.
type Battery struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	ClanID          string     `json:"clanId"`
	Type            string     `json:"type"`
	Tier            int        `json:"tier"`
	InterceptChance float64    `json:"interceptChance"`
	Health          int        `json:"health"`
	Status          string     `json:"status"`
	CooldownUntil   *time.Time `json:"cooldownUntil,omitempty"`
	Attempts        int        `json:"attempts"`
	Kills           int        `json:"kills"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Eligible reports whether the battery can join an interception roll.
func (b *Battery) Eligible() bool {
	return (b.Status == StatusIdle || b.Status == StatusActive) && b.Health > 0
}

// InterceptionResult is the outcome of one defensive engagement.
type InterceptionResult struct {
	Intercepted bool    `json:"intercepted"`
	BatteryID   string  `json:"batteryId,omitempty"`
	BatteryType string  `json:"batteryType,omitempty"`
	TotalChance float64 `json:"totalChance"`
	Engaged     int     `json:"engaged"`
}

// Engagement is a planned interception: the roll outcome plus the
// batteries that took part. Planning writes nothing; battery state
// changes only when the caller commits the engagement after winning
// the missile's terminal transition.
type Engagement struct {
	Result *InterceptionResult

	winnerID string
	engaged  []*Battery
}

// Intercepted reports whether the planned engagement stopped the missile.
func (e *Engagement) Intercepted() bool {
	return e.Result != nil && e.Result.Intercepted
}

// Store persists batteries.
type Store interface {
	GetBattery(ctx context.Context, batteryID string) (*Battery, error)
	PutBattery(ctx context.Context, b *Battery) error
	DeleteBattery(ctx context.Context, batteryID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Battery, error)
	ListCooldownElapsed(ctx context.Context, now time.Time) ([]*Battery, error)
}
