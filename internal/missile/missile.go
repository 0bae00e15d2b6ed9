// Package missile implements the missile lifecycle from assembly to impact.
//
// Status transitions are guarded by conditional updates so that a
// scheduler tick racing another tick, or an admin action racing the
// scheduler, resolves each missile exactly once. A transition that
// matches zero rows surfaces as ErrConflict and the caller skips all
// side effects.
package missile

import (
	"context"
	"errors"
	"time"
)

// Missile statuses. The only legal sequences are subsequences of
// assembling -> ready -> launched -> {detonated | intercepted | disarmed}.
const (
	StatusAssembling  = "assembling"
	StatusReady       = "ready"
	StatusLaunched    = "launched"
	StatusDetonated   = "detonated"
	StatusIntercepted = "intercepted"
	StatusDisarmed    = "disarmed"
)

// Components lists the five required missile components in install-agnostic
// canonical order.
var Components = []string{"warhead", "propulsion", "guidance", "payload", "stealth"}

var (
	ErrMissileNotFound    = errors.New("missile not found")
	ErrUnknownWarhead     = errors.New("unknown warhead type")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrComponentInstalled = errors.New("component already installed")
	ErrNotReady           = errors.New("missile is not ready to launch")
	ErrInvalidState       = errors.New("invalid state for requested transition")
	ErrNotClanMissile     = errors.New("missile belongs to another clan")
	ErrOwnClanTarget      = errors.New("cannot target your own clan")
	ErrConflict           = errors.New("missile already resolved by another process")
)

// Missile is a clan-funded weapon under assembly or in flight.
type Missile struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	ClanID         string          `json:"clanId"`
	WarheadType    string          `json:"warheadType"`
	Tier           int             `json:"tier"`
	Status         string          `json:"status"`
	Components     map[string]bool `json:"components"`
	TargetID       string          `json:"targetId,omitempty"`
	TransactionIDs []string        `json:"transactionIds"`
	SpentMetal     int64           `json:"spentMetal"`
	SpentEnergy    int64           `json:"spentEnergy"`
	LaunchedAt     *time.Time      `json:"launchedAt,omitempty"`
	ImpactAt       *time.Time      `json:"impactAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// InstalledCount returns how many components are installed.
func (m *Missile) InstalledCount() int {
	n := 0
	for _, installed := range m.Components {
		if installed {
			n++
		}
	}
	return n
}

// Terminal reports whether the missile reached a final status.
func (m *Missile) Terminal() bool {
	switch m.Status {
	case StatusDetonated, StatusIntercepted, StatusDisarmed:
		return true
	}
	return false
}

// Store persists missiles. The mutating methods are conditional: they
// apply only when the missile is in the expected prior state, and report
// ErrComponentInstalled, ErrInvalidState or ErrConflict otherwise.
type Store interface {
	Create(ctx context.Context, m *Missile) error
	Get(ctx context.Context, missileID string) (*Missile, error)
	ListByClan(ctx context.Context, clanID string) ([]*Missile, error)

	// InstallComponent sets one component flag, records the spend, and
	// flips status to ready atomically with the fifth install. Fails with
	// ErrComponentInstalled if the flag is already set and ErrInvalidState
	// if the missile is not assembling.
	InstallComponent(ctx context.Context, missileID, component, txnID string, metal, energy int64) (*Missile, error)

	// MarkLaunched transitions ready -> launched and records the target
	// and flight window. ErrNotReady when the guard fails.
	MarkLaunched(ctx context.Context, missileID, targetID string, launchedAt, impactAt time.Time) error

	// MarkTerminal transitions launched -> detonated|intercepted.
	// ErrConflict when another process already resolved the missile.
	MarkTerminal(ctx context.Context, missileID, to string) error

	// MarkDisarmed transitions any of the allowed prior statuses to
	// disarmed, returning the status the missile actually left.
	MarkDisarmed(ctx context.Context, missileID string, allowed []string) (string, error)

	// SetComponents rewrites the component flags and status; used by the
	// sabotage setback path. Applies only while assembling or ready.
	SetComponents(ctx context.Context, missileID string, components map[string]bool, status string) error

	// ListDueForImpact returns launched missiles whose impact time elapsed.
	ListDueForImpact(ctx context.Context, now time.Time) ([]*Missile, error)
}
