// Package events defines the outcome events emitted by the warfare services
// and the sinks that fan them out.
//
// Resolution logic returns events instead of notifying inline; callers
// forward them to a Sink. Delivery is fire-and-forget: a failed publish
// never rolls back the state transition that produced the event.
package events

import (
	"sync"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	TypeMissileLaunched    Type = "missile_launched"
	TypeMissileDetonated   Type = "missile_detonated"
	TypeMissileIntercepted Type = "missile_intercepted"
	TypeMissileDisarmed    Type = "missile_disarmed"
	TypeBatteryDeployed    Type = "battery_deployed"
	TypeMissionCompleted   Type = "mission_completed"
	TypeMissionFailed      Type = "mission_failed"
	TypeSpyCaptured        Type = "spy_captured"
	TypeCounterIntelAlert  Type = "counterintel_alert"
	TypeVoteCreated        Type = "vote_created"
	TypeVotePassed         Type = "vote_passed"
	TypeVoteFailed         Type = "vote_failed"
	TypeVoteExpired        Type = "vote_expired"
	TypeVoteVetoed         Type = "vote_vetoed"
	TypeTreasuryDebit      Type = "treasury_debit"
	TypeTreasuryRefund     Type = "treasury_refund"
)

// Event is a structured outcome notification. ClanIDs lists the clans the
// event should be routed to; Data carries a typed payload struct.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ClanIDs   []string  `json:"clanIds,omitempty"`
	Data      any       `json:"data"`
}

// New builds an event stamped with the current time.
func New(t Type, data any, clanIDs ...string) Event {
	return Event{Type: t, Timestamp: time.Now(), ClanIDs: clanIDs, Data: data}
}

// Sink receives events for fan-out to affected parties.
type Sink interface {
	Publish(event Event)
}

// Typed payloads.

// MissileLaunchedData announces a launch to both sides.
type MissileLaunchedData struct {
	MissileID    string    `json:"missileId"`
	WarheadType  string    `json:"warheadType"`
	LauncherID   string    `json:"launcherId"`
	LauncherClan string    `json:"launcherClan"`
	TargetID     string    `json:"targetId"`
	TargetClan   string    `json:"targetClan"`
	ImpactAt     time.Time `json:"impactAt"`
}

// MissileImpactData reports a detonation or interception.
type MissileImpactData struct {
	MissileID         string  `json:"missileId"`
	WarheadType       string  `json:"warheadType"`
	TargetID          string  `json:"targetId"`
	Intercepted       bool    `json:"intercepted"`
	BatteryID         string  `json:"batteryId,omitempty"`
	DamagePercent     float64 `json:"damagePercent"`
	UnitsDestroyed    int     `json:"unitsDestroyed"`
	FactoriesDisabled int     `json:"factoriesDisabled"`
	MetalLost         int64   `json:"metalLost"`
	EnergyLost        int64   `json:"energyLost"`
}

// MissileDisarmedData reports an admin emergency disarm.
type MissileDisarmedData struct {
	MissileID string `json:"missileId"`
	AdminID   string `json:"adminId"`
	Reason    string `json:"reason,omitempty"`
}

// BatteryDeployedData announces a new defense battery.
type BatteryDeployedData struct {
	BatteryID   string `json:"batteryId"`
	BatteryType string `json:"batteryType"`
	OwnerID     string `json:"ownerId"`
	ClanID      string `json:"clanId"`
}

// MissionResultData reports a resolved spy mission to the spy's clan.
type MissionResultData struct {
	MissionID   string `json:"missionId"`
	MissionType string `json:"missionType"`
	SpyID       string `json:"spyId"`
	TargetID    string `json:"targetId"`
	Outcome     string `json:"outcome"`
	Report      any    `json:"report,omitempty"`
}

// SpyCapturedData reports a compromised spy to its owning clan.
type SpyCapturedData struct {
	SpyID      string `json:"spyId"`
	Codename   string `json:"codename"`
	OwnerClan  string `json:"ownerClan"`
	TargetClan string `json:"targetClan"`
}

// CounterIntelAlertData warns a target clan about a captured spy.
// The spy is named only when actually captured.
type CounterIntelAlertData struct {
	TargetClan  string `json:"targetClan"`
	SpyCodename string `json:"spyCodename,omitempty"`
	SourceClan  string `json:"sourceClan,omitempty"`
	MissionType string `json:"missionType"`
}

// VoteData reports vote lifecycle changes to the clan.
type VoteData struct {
	VoteID       string `json:"voteId"`
	ClanID       string `json:"clanId"`
	VoteType     string `json:"voteType"`
	Status       string `json:"status"`
	ForVotes     int    `json:"forVotes"`
	AgainstVotes int    `json:"againstVotes"`
	Required     int    `json:"required"`
}

// TreasuryData reports funded operations, including the per-member share
// computed for transparency (the clan treasury is debited as a whole).
type TreasuryData struct {
	ClanID          string  `json:"clanId"`
	TransactionID   string  `json:"transactionId"`
	PurchaseType    string  `json:"purchaseType"`
	MetalCost       int64   `json:"metalCost"`
	EnergyCost      int64   `json:"energyCost"`
	PerMemberMetal  int64   `json:"perMemberMetal"`
	PerMemberEnergy int64   `json:"perMemberEnergy"`
	RefundFraction  float64 `json:"refundFraction,omitempty"`
}

// MemorySink collects events in memory; used by tests and as a fallback when
// no hub is wired.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish appends the event.
func (m *MemorySink) Publish(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of all published events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns published events of one type.
func (m *MemorySink) ByType(t Type) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
