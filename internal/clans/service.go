package clans

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/roll"
)

// FactoryDowntime is how long a factory stays disabled after a strike.
const FactoryDowntime = 12 * time.Hour

// DamageReport summarizes the assets lost to a detonation.
type DamageReport struct {
	UnitsDestroyed    int   `json:"unitsDestroyed"`
	FactoriesDisabled int   `json:"factoriesDisabled"`
	MetalLost         int64 `json:"metalLost"`
	EnergyLost        int64 `json:"energyLost"`
}

// Service answers membership queries and applies damage to bases.
type Service struct {
	store  Store
	roller *roll.Roller
}

// NewService creates a clan service.
func NewService(store Store, roller *roll.Roller) *Service {
	return &Service{store: store, roller: roller}
}

// GetClan returns the clan record.
func (s *Service) GetClan(ctx context.Context, clanID string) (*Clan, error) {
	return s.store.GetClan(ctx, clanID)
}

// MemberCount returns the clan's member count.
func (s *Service) MemberCount(ctx context.Context, clanID string) (int, error) {
	clan, err := s.store.GetClan(ctx, clanID)
	if err != nil {
		return 0, err
	}
	return clan.MemberCount(), nil
}

// LeaderID returns the clan's designated leader.
func (s *Service) LeaderID(ctx context.Context, clanID string) (string, error) {
	clan, err := s.store.GetClan(ctx, clanID)
	if err != nil {
		return "", err
	}
	return clan.LeaderID, nil
}

// IsMember reports whether the player belongs to the clan.
func (s *Service) IsMember(ctx context.Context, clanID, playerID string) (bool, error) {
	clan, err := s.store.GetClan(ctx, clanID)
	if err != nil {
		return false, err
	}
	return clan.IsMember(playerID), nil
}

// ResearchTier returns the clan's unlocked research tier.
func (s *Service) ResearchTier(ctx context.Context, clanID string) (int, error) {
	clan, err := s.store.GetClan(ctx, clanID)
	if err != nil {
		return 0, err
	}
	return clan.ResearchTier, nil
}

// GetBase returns a player's base, re-enabling factories whose downtime
// has elapsed.
func (s *Service) GetBase(ctx context.Context, playerID string) (*Base, error) {
	base, err := s.store.GetBase(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if refreshFactories(base) {
		if err := s.store.PutBase(ctx, base); err != nil {
			return nil, fmt.Errorf("persist factory recovery: %w", err)
		}
	}
	return base, nil
}

// ClanOf returns the clan a player's base belongs to.
func (s *Service) ClanOf(ctx context.Context, playerID string) (string, error) {
	base, err := s.store.GetBase(ctx, playerID)
	if err != nil {
		return "", err
	}
	return base.ClanID, nil
}

// SecurityLevel returns the base's espionage hardening (0..1).
func (s *Service) SecurityLevel(ctx context.Context, playerID string) (float64, error) {
	base, err := s.store.GetBase(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return base.SecurityLevel, nil
}

// ApplyDetonation distributes a warhead's damage percentage across the
// target base: 70% of it destroys units, 20% disables factories (at most
// three per strike), 10% drains stockpiles.
func (s *Service) ApplyDetonation(ctx context.Context, targetPlayerID string, damagePercent float64) (*DamageReport, error) {
	base, err := s.GetBase(ctx, targetPlayerID)
	if err != nil {
		return nil, err
	}

	report := &DamageReport{}

	// Units: destroy a random subset of the roster.
	unitFrac := damagePercent * gamedata.DamageShareUnits / 100
	report.UnitsDestroyed = s.destroyUnits(base, unitFrac)

	// Factories: knock out up to three active ones.
	factoryFrac := damagePercent * gamedata.DamageShareFactories / 100
	report.FactoriesDisabled = s.disableFactories(base, factoryFrac)

	// Stockpiles: proportional drain.
	stockFrac := damagePercent * gamedata.DamageShareStockpiles / 100
	report.MetalLost = int64(float64(base.MetalStock) * stockFrac)
	report.EnergyLost = int64(float64(base.EnergyStock) * stockFrac)
	base.MetalStock -= report.MetalLost
	base.EnergyStock -= report.EnergyLost

	base.UpdatedAt = time.Now()
	if err := s.store.PutBase(ctx, base); err != nil {
		return nil, fmt.Errorf("persist detonation damage: %w", err)
	}
	return report, nil
}

// ApplyResourceWaste drains stockpiles after a successful sabotage.
func (s *Service) ApplyResourceWaste(ctx context.Context, targetPlayerID string, metal, energy int64) error {
	base, err := s.store.GetBase(ctx, targetPlayerID)
	if err != nil {
		return err
	}
	base.MetalStock -= min64(metal, base.MetalStock)
	base.EnergyStock -= min64(energy, base.EnergyStock)
	base.UpdatedAt = time.Now()
	return s.store.PutBase(ctx, base)
}

// ForceComposition returns a copy of the target's unit roster for
// reconnaissance reports.
func (s *Service) ForceComposition(ctx context.Context, targetPlayerID string) (map[string]int, error) {
	base, err := s.store.GetBase(ctx, targetPlayerID)
	if err != nil {
		return nil, err
	}
	units := make(map[string]int, len(base.Units))
	for k, v := range base.Units {
		units[k] = v
	}
	return units, nil
}

// FactoryActivity returns factory status for surveillance reports.
func (s *Service) FactoryActivity(ctx context.Context, targetPlayerID string) ([]Factory, error) {
	base, err := s.GetBase(ctx, targetPlayerID)
	if err != nil {
		return nil, err
	}
	out := make([]Factory, len(base.Factories))
	copy(out, base.Factories)
	return out, nil
}

// ResourceSnapshot returns the target's stockpiles for infiltration reports.
func (s *Service) ResourceSnapshot(ctx context.Context, targetPlayerID string) (metal, energy int64, err error) {
	base, err := s.store.GetBase(ctx, targetPlayerID)
	if err != nil {
		return 0, 0, err
	}
	return base.MetalStock, base.EnergyStock, nil
}

// destroyUnits removes roughly frac of the roster, picking victims randomly
// across unit types. Returns the number destroyed.
func (s *Service) destroyUnits(base *Base, frac float64) int {
	total := base.UnitCount()
	if total == 0 || frac <= 0 {
		return 0
	}
	toDestroy := int(float64(total)*frac + 0.5)
	if toDestroy > total {
		toDestroy = total
	}

	// Stable type order so the random walk is reproducible under a seeded roller.
	types := make([]string, 0, len(base.Units))
	for t := range base.Units {
		types = append(types, t)
	}
	sort.Strings(types)

	destroyed := 0
	for destroyed < toDestroy {
		t := types[s.roller.Intn(len(types))]
		if base.Units[t] > 0 {
			base.Units[t]--
			destroyed++
		}
	}
	return destroyed
}

// disableFactories knocks out active factories in proportion to frac,
// capped at MaxFactoriesDisabled per strike.
func (s *Service) disableFactories(base *Base, frac float64) int {
	if frac <= 0 {
		return 0
	}
	var active []int
	for i, f := range base.Factories {
		if !f.Disabled {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return 0
	}

	n := int(float64(len(active))*frac + 0.5)
	if n == 0 {
		n = 1 // Any hit that reaches the factory district disables at least one.
	}
	if n > gamedata.MaxFactoriesDisabled {
		n = gamedata.MaxFactoriesDisabled
	}
	if n > len(active) {
		n = len(active)
	}

	until := time.Now().Add(FactoryDowntime)
	for _, pick := range s.roller.Perm(len(active))[:n] {
		i := active[pick]
		base.Factories[i].Disabled = true
		base.Factories[i].DisabledUntil = &until
	}
	return n
}

// refreshFactories re-enables factories whose downtime elapsed.
// Returns true if anything changed.
func refreshFactories(base *Base) bool {
	now := time.Now()
	changed := false
	for i, f := range base.Factories {
		if f.Disabled && f.DisabledUntil != nil && now.After(*f.DisabledUntil) {
			base.Factories[i].Disabled = false
			base.Factories[i].DisabledUntil = nil
			changed = true
		}
	}
	return changed
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
