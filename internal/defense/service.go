package defense

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/roll"
	"github.com/mbd888/warclan/internal/traces"
	"github.com/mbd888/warclan/internal/treasury"
)

// RepairCostFraction scales the deploy cost by missing health to price a
// repair.
const RepairCostFraction = 0.5

// Funder debits the clan treasury for battery purchases.
type Funder interface {
	Debit(ctx context.Context, clanID, purchaseType, requesterID, requesterName, description string, cost gamedata.Cost) (*treasury.Transaction, error)
}

// Service manages defense batteries and resolves interception attempts.
type Service struct {
	store  Store
	tables *gamedata.Tables
	funder Funder
	roller *roll.Roller
	sink   events.Sink
}

// NewService creates a defense service.
func NewService(store Store, tables *gamedata.Tables, funder Funder, roller *roll.Roller, sink events.Sink) *Service {
	return &Service{store: store, tables: tables, funder: funder, roller: roller, sink: sink}
}

// Deploy purchases and emplaces a new battery for the actor. The
// returned transaction carries the per-member cost share for the
// response.
func (s *Service) Deploy(ctx context.Context, actor clans.Actor, batteryType string) (*Battery, *treasury.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "defense.Deploy", traces.ClanID(actor.ClanID), traces.PlayerID(actor.PlayerID))
	defer span.End()

	spec, ok := s.tables.Batteries[batteryType]
	if !ok {
		return nil, nil, ErrUnknownBatteryType
	}

	desc := fmt.Sprintf("deploy %s battery", batteryType)
	txn, err := s.funder.Debit(ctx, actor.ClanID, "battery_deploy", actor.PlayerID, actor.Username, desc, spec.Cost)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	b := &Battery{
		ID:              idgen.WithPrefix("bty"),
		OwnerID:         actor.PlayerID,
		ClanID:          actor.ClanID,
		Type:            batteryType,
		Tier:            spec.Tier,
		InterceptChance: spec.InterceptChance,
		Health:          100,
		Status:          StatusIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutBattery(ctx, b); err != nil {
		return nil, nil, fmt.Errorf("persist battery: %w", err)
	}

	if s.sink != nil {
		s.sink.Publish(events.New(events.TypeBatteryDeployed, events.BatteryDeployedData{
			BatteryID:   b.ID,
			BatteryType: b.Type,
			OwnerID:     b.OwnerID,
			ClanID:      b.ClanID,
		}, b.ClanID))
	}
	return b, txn, nil
}

// Repair restores a damaged battery to full health. The price scales with
// the missing health.
func (s *Service) Repair(ctx context.Context, actor clans.Actor, batteryID string) (*Battery, error) {
	b, err := s.store.GetBattery(ctx, batteryID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != actor.PlayerID {
		return nil, ErrNotOwner
	}
	if b.Status != StatusDamaged && b.Health >= 100 {
		return nil, ErrNotDamaged
	}

	spec, ok := s.tables.Batteries[b.Type]
	if !ok {
		return nil, ErrUnknownBatteryType
	}
	missing := float64(100-b.Health) / 100
	cost := spec.Cost.Scale(missing * RepairCostFraction)
	if !cost.IsZero() {
		desc := fmt.Sprintf("repair %s battery %s", b.Type, b.ID)
		if _, err := s.funder.Debit(ctx, actor.ClanID, "battery_repair", actor.PlayerID, actor.Username, desc, cost); err != nil {
			return nil, err
		}
	}

	b.Health = 100
	b.Status = StatusIdle
	b.CooldownUntil = nil
	b.UpdatedAt = time.Now()
	if err := s.store.PutBattery(ctx, b); err != nil {
		return nil, fmt.Errorf("persist repair: %w", err)
	}
	return b, nil
}

// Dismantle destroys a battery. No refund; emplacements are not
// recoverable once built.
func (s *Service) Dismantle(ctx context.Context, actor clans.Actor, batteryID string) error {
	b, err := s.store.GetBattery(ctx, batteryID)
	if err != nil {
		return err
	}
	if b.OwnerID != actor.PlayerID {
		return ErrNotOwner
	}
	return s.store.DeleteBattery(ctx, batteryID)
}

// ListBatteries returns a player's batteries.
func (s *Service) ListBatteries(ctx context.Context, ownerID string) ([]*Battery, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// PlanInterception rolls the target's defense grid against one incoming
// missile without writing any battery state. Eligible batteries are
// those idle or active with health above zero. Their chances sum,
// capped at the interception ceiling, and a single roll decides the
// engagement. A successful interception is credited to the eligible
// battery with the highest individual chance (ties broken by ID for
// determinism). The caller commits the plan with CommitEngagement only
// after it wins the missile's terminal transition.
func (s *Service) PlanInterception(ctx context.Context, targetID string) (*Engagement, error) {
	batteries, err := s.store.ListByOwner(ctx, targetID)
	if err != nil {
		return nil, err
	}

	var eligible []*Battery
	total := 0.0
	for _, b := range batteries {
		if b.Eligible() {
			eligible = append(eligible, b)
			total += b.InterceptChance
		}
	}
	if len(eligible) == 0 {
		return &Engagement{Result: &InterceptionResult{}}, nil
	}
	if total > gamedata.InterceptionCap {
		total = gamedata.InterceptionCap
	}

	intercepted := s.roller.Chance(total)
	result := &InterceptionResult{
		Intercepted: intercepted,
		TotalChance: total,
		Engaged:     len(eligible),
	}

	e := &Engagement{Result: result, engaged: eligible}
	if intercepted {
		sort.Slice(eligible, func(i, j int) bool {
			if eligible[i].InterceptChance != eligible[j].InterceptChance {
				return eligible[i].InterceptChance > eligible[j].InterceptChance
			}
			return eligible[i].ID < eligible[j].ID
		})
		winner := eligible[0]
		e.winnerID = winner.ID
		result.BatteryID = winner.ID
		result.BatteryType = winner.Type
	}
	return e, nil
}

// CommitEngagement persists a planned engagement: every engaged battery
// records the attempt and goes on cooldown, the winning battery records
// the kill, and the outcome is counted. A plan that found no defenses
// commits only its metric.
func (s *Service) CommitEngagement(ctx context.Context, e *Engagement) error {
	if len(e.engaged) == 0 {
		metrics.InterceptionAttemptsTotal.WithLabelValues("no_defenses").Inc()
		return nil
	}

	now := time.Now()
	for _, b := range e.engaged {
		b.Attempts++
		if b.ID == e.winnerID {
			b.Kills++
		}
		spec := s.tables.Batteries[b.Type]
		until := now.Add(spec.Cooldown)
		b.Status = StatusCooldown
		b.CooldownUntil = &until
		b.UpdatedAt = now
		if err := s.store.PutBattery(ctx, b); err != nil {
			// The engagement already happened; record what we can.
			logging.L(ctx).Error("persist battery engagement failed",
				"battery_id", b.ID, "error", err)
		}
	}

	if e.Result.Intercepted {
		metrics.InterceptionAttemptsTotal.WithLabelValues("intercepted").Inc()
	} else {
		metrics.InterceptionAttemptsTotal.WithLabelValues("missed").Inc()
	}
	return nil
}

// RecoverCooldowns returns cooled-down batteries to idle. Called by the
// scheduler sweep; returns the number recovered.
func (s *Service) RecoverCooldowns(ctx context.Context) (int, error) {
	due, err := s.store.ListCooldownElapsed(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, b := range due {
		b.Status = StatusIdle
		b.CooldownUntil = nil
		b.UpdatedAt = time.Now()
		if err := s.store.PutBattery(ctx, b); err != nil {
			logging.L(ctx).Error("persist cooldown recovery failed",
				"battery_id", b.ID, "error", err)
			continue
		}
		recovered++
	}
	return recovered, nil
}
