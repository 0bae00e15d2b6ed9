package missile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/defense"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/roll"
	"github.com/mbd888/warclan/internal/traces"
	"github.com/mbd888/warclan/internal/treasury"
)

// Funder debits the clan treasury for missile purchases.
type Funder interface {
	Debit(ctx context.Context, clanID, purchaseType, requesterID, requesterName, description string, cost gamedata.Cost) (*treasury.Transaction, error)
	Refund(ctx context.Context, txnID string, fraction float64, reason string) (*treasury.Transaction, error)
}

// Interceptor rolls the target's defense grid against an incoming
// missile. Planning reads and rolls without writing battery state; the
// caller commits the engagement only after it wins the missile's
// terminal transition, so a losing resolver leaves the grid untouched.
type Interceptor interface {
	PlanInterception(ctx context.Context, targetID string) (*defense.Engagement, error)
	CommitEngagement(ctx context.Context, e *defense.Engagement) error
}

// TargetBases applies detonation damage and answers target lookups.
type TargetBases interface {
	ClanOf(ctx context.Context, playerID string) (string, error)
	ApplyDetonation(ctx context.Context, targetPlayerID string, damagePercent float64) (*clans.DamageReport, error)
}

// Service drives the missile lifecycle.
type Service struct {
	store       Store
	tables      *gamedata.Tables
	funder      Funder
	interceptor Interceptor
	bases       TargetBases
	roller      *roll.Roller
	sink        events.Sink
}

// NewService creates a missile service.
func NewService(store Store, tables *gamedata.Tables, funder Funder, interceptor Interceptor, bases TargetBases, roller *roll.Roller, sink events.Sink) *Service {
	return &Service{
		store:       store,
		tables:      tables,
		funder:      funder,
		interceptor: interceptor,
		bases:       bases,
		roller:      roller,
		sink:        sink,
	}
}

// Create purchases a warhead and starts assembly. The returned
// transaction carries the per-member cost share for the response.
func (s *Service) Create(ctx context.Context, actor clans.Actor, warheadType string) (*Missile, *treasury.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "missile.Create", traces.ClanID(actor.ClanID), traces.PlayerID(actor.PlayerID))
	defer span.End()

	spec, ok := s.tables.Warheads[warheadType]
	if !ok {
		return nil, nil, ErrUnknownWarhead
	}

	desc := fmt.Sprintf("create %s missile", warheadType)
	txn, err := s.funder.Debit(ctx, actor.ClanID, "missile_create", actor.PlayerID, actor.Username, desc, spec.Cost)
	if err != nil {
		return nil, nil, err
	}

	components := make(map[string]bool, len(Components))
	for _, c := range Components {
		components[c] = false
	}
	now := time.Now()
	m := &Missile{
		ID:             idgen.WithPrefix("msl"),
		OwnerID:        actor.PlayerID,
		ClanID:         actor.ClanID,
		WarheadType:    warheadType,
		Tier:           spec.Tier,
		Status:         StatusAssembling,
		Components:     components,
		TransactionIDs: []string{txn.ID},
		SpentMetal:     spec.Cost.Metal,
		SpentEnergy:    spec.Cost.Energy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		if _, refundErr := s.funder.Refund(ctx, txn.ID, gamedata.RefundVoluntary, "missile creation failed"); refundErr != nil {
			logging.L(ctx).Error("refund after failed create", "txn_id", txn.ID, "error", refundErr)
		}
		return nil, nil, fmt.Errorf("persist missile: %w", err)
	}
	return m, txn, nil
}

// AssembleComponent installs one component, debiting its tier-scaled cost.
// Installing the fifth component flips the missile to ready atomically
// with the component write.
func (s *Service) AssembleComponent(ctx context.Context, actor clans.Actor, missileID, component string) (*Missile, *treasury.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "missile.AssembleComponent", traces.MissileID(missileID))
	defer span.End()

	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return nil, nil, err
	}
	if m.ClanID != actor.ClanID {
		return nil, nil, ErrNotClanMissile
	}
	if m.Status != StatusAssembling {
		return nil, nil, ErrInvalidState
	}
	if installed, ok := m.Components[component]; !ok {
		return nil, nil, ErrUnknownComponent
	} else if installed {
		return nil, nil, ErrComponentInstalled
	}

	cost, err := s.tables.ComponentCost(component, m.Tier)
	if err != nil {
		return nil, nil, ErrUnknownComponent
	}

	desc := fmt.Sprintf("install %s on %s", component, missileID)
	txn, err := s.funder.Debit(ctx, actor.ClanID, "missile_component", actor.PlayerID, actor.Username, desc, cost)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.InstallComponent(ctx, missileID, component, txn.ID, cost.Metal, cost.Energy)
	if err != nil {
		// A concurrent install won the component; return the money.
		if _, refundErr := s.funder.Refund(ctx, txn.ID, gamedata.RefundVoluntary, "install conflict"); refundErr != nil {
			logging.L(ctx).Error("refund after install conflict", "txn_id", txn.ID, "error", refundErr)
		}
		return nil, nil, err
	}
	return updated, txn, nil
}

// Launch fires a ready missile at a target outside the clan. The ready to
// launched transition is conditional; a concurrent launch or disarm makes
// this call fail rather than double-launch.
func (s *Service) Launch(ctx context.Context, actor clans.Actor, missileID, targetID string) (*Missile, error) {
	ctx, span := traces.StartSpan(ctx, "missile.Launch", traces.MissileID(missileID))
	defer span.End()

	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return nil, err
	}
	if m.ClanID != actor.ClanID {
		return nil, ErrNotClanMissile
	}
	targetClan, err := s.bases.ClanOf(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	if targetClan == actor.ClanID {
		return nil, ErrOwnClanTarget
	}

	spec := s.tables.Warheads[m.WarheadType]
	now := time.Now()
	impactAt := now.Add(spec.FlightTime)
	if err := s.store.MarkLaunched(ctx, missileID, targetID, now, impactAt); err != nil {
		return nil, err
	}

	m.Status = StatusLaunched
	m.TargetID = targetID
	m.LaunchedAt = &now
	m.ImpactAt = &impactAt

	if s.sink != nil {
		s.sink.Publish(events.New(events.TypeMissileLaunched, events.MissileLaunchedData{
			MissileID:    m.ID,
			WarheadType:  m.WarheadType,
			LauncherID:   actor.PlayerID,
			LauncherClan: actor.ClanID,
			TargetID:     targetID,
			TargetClan:   targetClan,
			ImpactAt:     impactAt,
		}, actor.ClanID, targetClan))
	}
	logging.L(ctx).Info("missile launched",
		"missile_id", m.ID, "warhead", m.WarheadType, "target_id", targetID, "impact_at", impactAt)
	return m, nil
}

// Disassemble voluntarily cancels a missile before launch, refunding the
// full spend. Each backing transaction is refunded at most once.
func (s *Service) Disassemble(ctx context.Context, actor clans.Actor, missileID string) (*Missile, error) {
	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return nil, err
	}
	if m.ClanID != actor.ClanID {
		return nil, ErrNotClanMissile
	}

	if _, err := s.store.MarkDisarmed(ctx, missileID, []string{StatusAssembling, StatusReady}); err != nil {
		return nil, err
	}
	s.refundAll(ctx, m, gamedata.RefundVoluntary, "voluntary disassembly")

	m.Status = StatusDisarmed
	return m, nil
}

// Disarm is the admin emergency stop. It works from any pre-impact status,
// including in flight, and refunds half the spend exactly once.
func (s *Service) Disarm(ctx context.Context, adminID, missileID, reason string) (*Missile, error) {
	ctx, span := traces.StartSpan(ctx, "missile.Disarm", traces.MissileID(missileID))
	defer span.End()

	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.MarkDisarmed(ctx, missileID, []string{StatusAssembling, StatusReady, StatusLaunched}); err != nil {
		return nil, err
	}
	s.refundAll(ctx, m, gamedata.RefundAdmin, "admin disarm: "+reason)

	m.Status = StatusDisarmed
	metrics.MissilesResolvedTotal.WithLabelValues("disarmed").Inc()

	if s.sink != nil {
		s.sink.Publish(events.New(events.TypeMissileDisarmed, events.MissileDisarmedData{
			MissileID: m.ID,
			AdminID:   adminID,
			Reason:    reason,
		}, m.ClanID))
	}
	logging.L(ctx).Warn("missile disarmed by admin",
		"missile_id", m.ID, "admin_id", adminID, "reason", reason)
	return m, nil
}

// Get returns one missile.
func (s *Service) Get(ctx context.Context, missileID string) (*Missile, error) {
	return s.store.Get(ctx, missileID)
}

// ListByClan returns a clan's missiles.
func (s *Service) ListByClan(ctx context.Context, clanID string) ([]*Missile, error) {
	return s.store.ListByClan(ctx, clanID)
}

// ApplyAssemblySetback removes up to fraction of the installed components
// after a successful sabotage. A ready missile drops back to assembling.
// Returns the number of components removed.
func (s *Service) ApplyAssemblySetback(ctx context.Context, missileID string, fraction float64) (int, error) {
	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return 0, err
	}
	if m.Status != StatusAssembling && m.Status != StatusReady {
		return 0, ErrInvalidState
	}

	installed := m.InstalledCount()
	if installed == 0 || fraction <= 0 {
		return 0, nil
	}
	toRemove := int(float64(installed)*fraction + 0.5)
	if toRemove == 0 {
		toRemove = 1
	}
	if toRemove > installed {
		toRemove = installed
	}

	var names []string
	for _, c := range Components {
		if m.Components[c] {
			names = append(names, c)
		}
	}
	for _, pick := range s.roller.Perm(len(names))[:toRemove] {
		m.Components[names[pick]] = false
	}

	if err := s.store.SetComponents(ctx, missileID, m.Components, StatusAssembling); err != nil {
		return 0, err
	}
	return toRemove, nil
}

// ResolveImpact resolves one launched missile whose impact time elapsed.
// The launched to terminal transition is conditional; on ErrConflict the
// caller must skip all side effects. Returns the events to publish.
func (s *Service) ResolveImpact(ctx context.Context, missileID string) ([]events.Event, error) {
	ctx, span := traces.StartSpan(ctx, "missile.ResolveImpact", traces.MissileID(missileID))
	defer span.End()

	m, err := s.store.Get(ctx, missileID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusLaunched {
		return nil, ErrConflict
	}

	// Plan the interception without touching battery state. Battery
	// writes happen only after this resolver wins the terminal
	// transition below; a loser leaves the defense grid untouched.
	engagement, err := s.interceptor.PlanInterception(ctx, m.TargetID)
	if err != nil {
		return nil, fmt.Errorf("interception roll: %w", err)
	}

	targetClan, err := s.bases.ClanOf(ctx, m.TargetID)
	if err != nil {
		logging.L(ctx).Warn("resolve target clan failed", "missile_id", m.ID, "error", err)
	}

	if engagement.Intercepted() {
		if err := s.store.MarkTerminal(ctx, missileID, StatusIntercepted); err != nil {
			return nil, err
		}
		s.commitEngagement(ctx, m.ID, engagement)
		metrics.MissilesResolvedTotal.WithLabelValues("intercepted").Inc()
		return []events.Event{events.New(events.TypeMissileIntercepted, events.MissileImpactData{
			MissileID:   m.ID,
			WarheadType: m.WarheadType,
			TargetID:    m.TargetID,
			Intercepted: true,
			BatteryID:   engagement.Result.BatteryID,
		}, m.ClanID, targetClan)}, nil
	}

	spec := s.tables.Warheads[m.WarheadType]
	damagePercent := spec.PrimaryDamagePercent * s.roller.Between(gamedata.DamageVarianceMin, gamedata.DamageVarianceMax)

	if err := s.store.MarkTerminal(ctx, missileID, StatusDetonated); err != nil {
		return nil, err
	}
	s.commitEngagement(ctx, m.ID, engagement)

	report, err := s.bases.ApplyDetonation(ctx, m.TargetID, damagePercent)
	if err != nil {
		// The transition already happened; log the damage failure rather
		// than retry and risk a double strike.
		logging.L(ctx).Error("apply detonation damage failed",
			"missile_id", m.ID, "target_id", m.TargetID, "error", err)
		report = &clans.DamageReport{}
	}

	metrics.MissilesResolvedTotal.WithLabelValues("detonated").Inc()
	return []events.Event{events.New(events.TypeMissileDetonated, events.MissileImpactData{
		MissileID:         m.ID,
		WarheadType:       m.WarheadType,
		TargetID:          m.TargetID,
		DamagePercent:     damagePercent,
		UnitsDestroyed:    report.UnitsDestroyed,
		FactoriesDisabled: report.FactoriesDisabled,
		MetalLost:         report.MetalLost,
		EnergyLost:        report.EnergyLost,
	}, m.ClanID, targetClan)}, nil
}

// ResolveDue resolves every launched missile past its impact time. Used by
// the scheduler sweep; conflicts are absorbed, other failures are logged
// and counted without aborting the batch.
func (s *Service) ResolveDue(ctx context.Context) (processed, failed int, err error) {
	due, err := s.store.ListDueForImpact(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}
	for _, m := range due {
		evts, err := s.ResolveImpact(ctx, m.ID)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			logging.L(ctx).Error("resolve missile impact failed", "missile_id", m.ID, "error", err)
			failed++
			continue
		}
		for _, e := range evts {
			if s.sink != nil {
				s.sink.Publish(e)
			}
		}
		processed++
	}
	return processed, failed, nil
}

// commitEngagement persists the defense-grid effects of a won
// resolution. The transition already happened; a failed commit is
// logged rather than retried so the strike is never double-counted.
func (s *Service) commitEngagement(ctx context.Context, missileID string, e *defense.Engagement) {
	if err := s.interceptor.CommitEngagement(ctx, e); err != nil {
		logging.L(ctx).Error("commit interception engagement failed",
			"missile_id", missileID, "error", err)
	}
}

func (s *Service) refundAll(ctx context.Context, m *Missile, fraction float64, reason string) {
	for _, txnID := range m.TransactionIDs {
		if _, err := s.funder.Refund(ctx, txnID, fraction, reason); err != nil {
			if errors.Is(err, treasury.ErrAlreadyRefunded) {
				continue
			}
			logging.L(ctx).Error("missile refund failed", "txn_id", txnID, "error", err)
		}
	}
}
