package spy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/missile"
	"github.com/mbd888/warclan/internal/roll"
	"github.com/mbd888/warclan/internal/traces"
	"github.com/mbd888/warclan/internal/treasury"
)

// Experience awards per mission outcome.
const (
	xpMissionSuccess  = 50
	xpMissionFailure  = 15
	promotionBonus    = 5
	compromisePenalty = 10
)

// researchBonusPerTier is the clan-affiliation success bonus per unlocked
// research tier.
const researchBonusPerTier = 0.02

// resourceWasteShare scales a successful resource sabotage: the drained
// fraction is this share times the spy's sabotage skill fraction.
const resourceWasteShare = 0.10

// Funder debits the clan treasury for espionage purchases.
type Funder interface {
	Debit(ctx context.Context, clanID, purchaseType, requesterID, requesterName, description string, cost gamedata.Cost) (*treasury.Transaction, error)
}

// ClanIntel answers membership and base questions about targets.
type ClanIntel interface {
	ClanOf(ctx context.Context, playerID string) (string, error)
	ResearchTier(ctx context.Context, clanID string) (int, error)
	SecurityLevel(ctx context.Context, playerID string) (float64, error)
	ForceComposition(ctx context.Context, targetPlayerID string) (map[string]int, error)
	FactoryActivity(ctx context.Context, targetPlayerID string) ([]clans.Factory, error)
	ResourceSnapshot(ctx context.Context, targetPlayerID string) (metal, energy int64, err error)
	ApplyResourceWaste(ctx context.Context, targetPlayerID string, metal, energy int64) error
}

// MissileIntel exposes the missile program to espionage.
type MissileIntel interface {
	Get(ctx context.Context, missileID string) (*missile.Missile, error)
	ListByClan(ctx context.Context, clanID string) ([]*missile.Missile, error)
	ApplyAssemblySetback(ctx context.Context, missileID string, fraction float64) (int, error)
}

// Service runs the espionage engine.
type Service struct {
	store    Store
	tables   *gamedata.Tables
	funder   Funder
	intel    ClanIntel
	missiles MissileIntel
	roller   *roll.Roller
	sink     events.Sink
}

// NewService creates a spy service.
func NewService(store Store, tables *gamedata.Tables, funder Funder, intel ClanIntel, missiles MissileIntel, roller *roll.Roller, sink events.Sink) *Service {
	return &Service{
		store:    store,
		tables:   tables,
		funder:   funder,
		intel:    intel,
		missiles: missiles,
		roller:   roller,
		sink:     sink,
	}
}

var codenameAdjectives = []string{"SILENT", "CRIMSON", "HOLLOW", "IRON", "PALE", "SABLE", "VELVET", "GREY"}
var codenameNouns = []string{"FOX", "HERON", "VIPER", "LANTERN", "SPARROW", "CIPHER", "HARBOR", "NEEDLE"}

func (s *Service) codename() string {
	adj := codenameAdjectives[s.roller.Intn(len(codenameAdjectives))]
	noun := codenameNouns[s.roller.Intn(len(codenameNouns))]
	return fmt.Sprintf("%s %s %02d", adj, noun, s.roller.Intn(100))
}

// Recruit hires a new spy. The per-player roster is capped by the clan's
// research tier, and the price depends on the specialization. The
// returned transaction carries the per-member cost share for the
// response.
func (s *Service) Recruit(ctx context.Context, actor clans.Actor, specialization string) (*Spy, *treasury.Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "spy.Recruit", traces.ClanID(actor.ClanID), traces.PlayerID(actor.PlayerID))
	defer span.End()

	spec, ok := s.tables.Specializations[specialization]
	if !ok {
		return nil, nil, ErrUnknownSpecialization
	}

	tier, err := s.intel.ResearchTier(ctx, actor.ClanID)
	if err != nil {
		return nil, nil, err
	}
	count, err := s.store.CountSpiesByOwner(ctx, actor.PlayerID)
	if err != nil {
		return nil, nil, err
	}
	if count >= s.tables.SpyCap(tier) {
		return nil, nil, ErrSpyCapReached
	}

	desc := fmt.Sprintf("recruit %s spy", specialization)
	txn, err := s.funder.Debit(ctx, actor.ClanID, "spy_recruit", actor.PlayerID, actor.Username, desc, spec.RecruitCost)
	if err != nil {
		return nil, nil, err
	}

	skills := make(map[string]int, len(Skills))
	for _, skill := range Skills {
		skills[skill] = spec.BaseSkills[skill]
	}
	now := time.Now()
	spy := &Spy{
		ID:             idgen.WithPrefix("spy"),
		OwnerID:        actor.PlayerID,
		ClanID:         actor.ClanID,
		Codename:       s.codename(),
		Specialization: specialization,
		Rank:           Ranks[0],
		Skills:         skills,
		Status:         StatusAvailable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateSpy(ctx, spy); err != nil {
		return nil, nil, fmt.Errorf("persist spy: %w", err)
	}
	return spy, txn, nil
}

// Train improves one skill with diminishing returns: the higher the
// current level, the smaller the gain. Cumulative experience can trigger
// a promotion, which grants +5 to every skill.
func (s *Service) Train(ctx context.Context, actor clans.Actor, spyID, skill, intensity string) (*Spy, error) {
	spy, err := s.ownedAvailableSpy(ctx, actor, spyID)
	if err != nil {
		return nil, err
	}
	if !validSkill(skill) {
		return nil, ErrUnknownSkill
	}
	base, ok := s.tables.TrainingImprovement[intensity]
	if !ok {
		return nil, ErrUnknownIntensity
	}

	level := spy.Skills[skill]
	improvement := int(base*(1-float64(level)/100) + 0.5)
	if improvement < 1 && level < 100 {
		improvement = 1
	}
	level += improvement
	if level > 100 {
		level = 100
	}
	spy.Skills[skill] = level
	spy.Experience += improvement
	s.promote(spy)

	spy.UpdatedAt = time.Now()
	if err := s.store.PutSpy(ctx, spy); err != nil {
		return nil, fmt.Errorf("persist training: %w", err)
	}
	return spy, nil
}

// promote applies every promotion the spy has earned.
func (s *Service) promote(spy *Spy) {
	for {
		next := NextRank(spy.Rank)
		if next == "" {
			return
		}
		threshold, ok := s.tables.RankPromotions[next]
		if !ok {
			return
		}
		if spy.Experience < threshold.Experience || spy.MissionsCompleted < threshold.Missions {
			return
		}
		spy.Rank = next
		for _, skill := range Skills {
			spy.Skills[skill] += promotionBonus
			if spy.Skills[skill] > 100 {
				spy.Skills[skill] = 100
			}
		}
	}
}

// StartMission sends a spy against a target player in another clan.
// Success odds come from the spy's rank, adjusted down by the target's
// security level and up by the clan's research standing.
func (s *Service) StartMission(ctx context.Context, actor clans.Actor, spyID, missionType, targetID string) (*Mission, error) {
	ctx, span := traces.StartSpan(ctx, "spy.StartMission", traces.ClanID(actor.ClanID))
	defer span.End()

	spy, err := s.ownedAvailableSpy(ctx, actor, spyID)
	if err != nil {
		return nil, err
	}
	spec, ok := s.tables.Missions[missionType]
	if !ok {
		return nil, ErrUnknownMissionType
	}
	for skill, minimum := range spec.SkillMinimums {
		if spy.Skills[skill] < minimum {
			return nil, fmt.Errorf("%w: %s requires %s >= %d", ErrSkillTooLow, missionType, skill, minimum)
		}
	}

	targetClan, err := s.intel.ClanOf(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	if targetClan == actor.ClanID {
		return nil, ErrOwnClanTarget
	}

	security, err := s.intel.SecurityLevel(ctx, targetID)
	if err != nil {
		return nil, err
	}
	tier, err := s.intel.ResearchTier(ctx, actor.ClanID)
	if err != nil {
		return nil, err
	}
	chance := spec.RankBaseChance[spy.Rank] + float64(tier)*researchBonusPerTier - security
	chance = clamp(chance, 0.05, 0.95)

	now := time.Now()
	m := &Mission{
		ID:            idgen.WithPrefix("mis"),
		SpyID:         spy.ID,
		ClanID:        actor.ClanID,
		Type:          missionType,
		TargetID:      targetID,
		TargetClan:    targetClan,
		Status:        MissionActive,
		SuccessChance: chance,
		DetectionRisk: spec.DetectionRisk,
		StartedAt:     now,
		ResolvesAt:    now.Add(spec.Duration),
	}
	if err := s.store.CreateMission(ctx, m); err != nil {
		return nil, fmt.Errorf("persist mission: %w", err)
	}

	spy.Status = StatusOnMission
	spy.UpdatedAt = now
	if err := s.store.PutSpy(ctx, spy); err != nil {
		return nil, fmt.Errorf("persist spy status: %w", err)
	}
	return m, nil
}

// ResolveMission resolves one due mission. Success and detection are
// independent rolls; a detected spy then rolls against capture. A
// captured spy compromises the mission outright: no report is delivered
// and only the consolation experience is earned, whatever the objective
// roll said. The active to terminal transition is conditional; on
// ErrConflict the caller skips all side effects. Returns the events to
// publish.
func (s *Service) ResolveMission(ctx context.Context, missionID string) ([]events.Event, error) {
	ctx, span := traces.StartSpan(ctx, "spy.ResolveMission")
	defer span.End()

	m, err := s.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != MissionActive {
		return nil, ErrConflict
	}
	spy, err := s.store.GetSpy(ctx, m.SpyID)
	if err != nil {
		return nil, err
	}

	success := s.roller.Chance(m.SuccessChance)
	detected := s.roller.Chance(m.DetectionRisk)
	captured := detected && s.roller.Chance(gamedata.CompromiseChance)

	var report any
	status := MissionFailed
	switch {
	case captured:
		status = MissionCompromised
	case success:
		status = MissionCompleted
		report, err = s.buildReport(ctx, m)
		if err != nil {
			logging.L(ctx).Warn("intel report generation failed",
				"mission_id", m.ID, "type", m.Type, "error", err)
		}
	}

	now := time.Now()
	if err := s.store.ResolveMission(ctx, missionID, status, detected, report, now); err != nil {
		return nil, err
	}

	// Past the conditional transition this process owns the side effects.
	spy.Experience += xpMissionFailure
	if success && !captured {
		spy.Experience += xpMissionSuccess - xpMissionFailure
		spy.MissionsCompleted++
	}

	if captured {
		spy.Status = StatusCompromised
		for _, skill := range Skills {
			spy.Skills[skill] -= compromisePenalty
			if spy.Skills[skill] < 0 {
				spy.Skills[skill] = 0
			}
		}
	} else {
		spy.Status = StatusAvailable
	}
	s.promote(spy)
	spy.UpdatedAt = now
	if err := s.store.PutSpy(ctx, spy); err != nil {
		logging.L(ctx).Error("persist spy after mission failed", "spy_id", spy.ID, "error", err)
	}

	outcome := status
	metrics.MissionsResolvedTotal.WithLabelValues(outcome).Inc()

	var out []events.Event
	resultType := events.TypeMissionFailed
	if status == MissionCompleted {
		resultType = events.TypeMissionCompleted
	}
	out = append(out, events.New(resultType, events.MissionResultData{
		MissionID:   m.ID,
		MissionType: m.Type,
		SpyID:       spy.ID,
		TargetID:    m.TargetID,
		Outcome:     outcome,
		Report:      report,
	}, m.ClanID))

	if detected {
		alert := events.CounterIntelAlertData{
			TargetClan:  m.TargetClan,
			MissionType: m.Type,
		}
		if captured {
			// The target learns who was caught; an escaped spy stays unnamed.
			alert.SpyCodename = spy.Codename
			alert.SourceClan = m.ClanID
			out = append(out, events.New(events.TypeSpyCaptured, events.SpyCapturedData{
				SpyID:      spy.ID,
				Codename:   spy.Codename,
				OwnerClan:  m.ClanID,
				TargetClan: m.TargetClan,
			}, m.ClanID))
		}
		out = append(out, events.New(events.TypeCounterIntelAlert, alert, m.TargetClan))
	}
	return out, nil
}

// buildReport assembles the intelligence product for a successful mission.
func (s *Service) buildReport(ctx context.Context, m *Mission) (any, error) {
	switch m.Type {
	case "RECONNAISSANCE":
		units, err := s.intel.ForceComposition(ctx, m.TargetID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"forceComposition": units}, nil
	case "SURVEILLANCE":
		factories, err := s.intel.FactoryActivity(ctx, m.TargetID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"factoryActivity": factories}, nil
	case "INFILTRATION":
		metal, energy, err := s.intel.ResourceSnapshot(ctx, m.TargetID)
		if err != nil {
			return nil, err
		}
		program := []map[string]any{}
		missiles, err := s.missiles.ListByClan(ctx, m.TargetClan)
		if err == nil {
			for _, msl := range missiles {
				if msl.Terminal() {
					continue
				}
				program = append(program, map[string]any{
					"missileId":   msl.ID,
					"warheadType": msl.WarheadType,
					"status":      msl.Status,
					"components":  msl.InstalledCount(),
				})
			}
		}
		return map[string]any{
			"resources":  map[string]int64{"metal": metal, "energy": energy},
			"wmdProgram": program,
		}, nil
	}
	return nil, nil
}

// ResolveDue resolves every mission past its resolution time. Used by the
// scheduler sweep; conflicts are absorbed.
func (s *Service) ResolveDue(ctx context.Context) (processed, failed int, err error) {
	due, err := s.store.ListDueMissions(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}
	for _, m := range due {
		evts, err := s.ResolveMission(ctx, m.ID)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			logging.L(ctx).Error("resolve mission failed", "mission_id", m.ID, "error", err)
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

// ExecuteSabotage is an immediate strike against a missile under assembly
// or a target's stockpiles. Success chance is the spy's sabotage skill
// fraction minus the target difficulty; the detection roll is independent
// of the outcome.
func (s *Service) ExecuteSabotage(ctx context.Context, actor clans.Actor, spyID, targetType, targetID string) (*SabotageResult, error) {
	ctx, span := traces.StartSpan(ctx, "spy.ExecuteSabotage", traces.ClanID(actor.ClanID))
	defer span.End()

	spy, err := s.ownedAvailableSpy(ctx, actor, spyID)
	if err != nil {
		return nil, err
	}
	skill := spy.Skills["sabotage"]
	if skill < 30 {
		return nil, fmt.Errorf("%w: sabotage requires sabotage >= 30", ErrSkillTooLow)
	}
	difficulty, ok := s.tables.SabotageDifficulty[targetType]
	if !ok {
		return nil, ErrUnknownMissionType
	}

	chance := clamp(float64(skill)/100-difficulty, 0, 1)
	result := &SabotageResult{Chance: chance}
	result.Success = s.roller.Chance(chance)

	var targetClan string
	switch targetType {
	case "MISSILE":
		msl, err := s.missiles.Get(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if msl.ClanID == actor.ClanID {
			return nil, ErrOwnClanTarget
		}
		targetClan = msl.ClanID
		if result.Success {
			fraction := s.roller.Between(0, gamedata.SabotageMaxSetback)
			removed, err := s.missiles.ApplyAssemblySetback(ctx, targetID, fraction)
			if err != nil && !errors.Is(err, missile.ErrInvalidState) {
				return nil, err
			}
			result.ComponentsRemoved = removed
		}
	case "RESOURCES":
		targetClan, err = s.intel.ClanOf(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("resolve target: %w", err)
		}
		if targetClan == actor.ClanID {
			return nil, ErrOwnClanTarget
		}
		if result.Success {
			metal, energy, err := s.intel.ResourceSnapshot(ctx, targetID)
			if err != nil {
				return nil, err
			}
			frac := resourceWasteShare * float64(skill) / 100
			result.MetalWasted = int64(float64(metal) * frac)
			result.EnergyWasted = int64(float64(energy) * frac)
			if err := s.intel.ApplyResourceWaste(ctx, targetID, result.MetalWasted, result.EnergyWasted); err != nil {
				return nil, err
			}
		}
	default:
		return nil, ErrUnknownMissionType
	}

	// Detection is rolled whether or not the sabotage worked.
	result.Detected = s.roller.Chance(gamedata.SabotageDetectionRisk)
	if result.Detected && s.roller.Chance(gamedata.CompromiseChance) {
		result.Compromised = true
		spy.Status = StatusCompromised
		for _, sk := range Skills {
			spy.Skills[sk] -= compromisePenalty
			if spy.Skills[sk] < 0 {
				spy.Skills[sk] = 0
			}
		}
		spy.UpdatedAt = time.Now()
		if err := s.store.PutSpy(ctx, spy); err != nil {
			logging.L(ctx).Error("persist compromised spy failed", "spy_id", spy.ID, "error", err)
		}
	}

	if s.sink != nil && result.Detected {
		alert := events.CounterIntelAlertData{
			TargetClan:  targetClan,
			MissionType: "SABOTAGE",
		}
		if result.Compromised {
			alert.SpyCodename = spy.Codename
			alert.SourceClan = actor.ClanID
			s.sink.Publish(events.New(events.TypeSpyCaptured, events.SpyCapturedData{
				SpyID:      spy.ID,
				Codename:   spy.Codename,
				OwnerClan:  actor.ClanID,
				TargetClan: targetClan,
			}, actor.ClanID))
		}
		s.sink.Publish(events.New(events.TypeCounterIntelAlert, alert, targetClan))
	}
	return result, nil
}

// CounterIntelSweep is a funded sweep against hostile spies currently on
// missions targeting the clan. Each active hostile mission is flushed
// with the compromise probability; flushed missions end compromised and
// their spies are captured.
func (s *Service) CounterIntelSweep(ctx context.Context, actor clans.Actor) (int, error) {
	ctx, span := traces.StartSpan(ctx, "spy.CounterIntelSweep", traces.ClanID(actor.ClanID))
	defer span.End()

	if _, err := s.funder.Debit(ctx, actor.ClanID, "counterintel_sweep", actor.PlayerID, actor.Username,
		"counter-intelligence sweep", s.tables.CounterIntelCost); err != nil {
		return 0, err
	}

	missions, err := s.store.ListActiveMissionsByTargetClan(ctx, actor.ClanID)
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, m := range missions {
		if !s.roller.Chance(gamedata.CompromiseChance) {
			continue
		}
		if err := s.store.ResolveMission(ctx, m.ID, MissionCompromised, true, nil, time.Now()); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			logging.L(ctx).Error("flush hostile mission failed", "mission_id", m.ID, "error", err)
			continue
		}
		flushed++

		hostile, err := s.store.GetSpy(ctx, m.SpyID)
		if err != nil {
			logging.L(ctx).Error("load flushed spy failed", "spy_id", m.SpyID, "error", err)
			continue
		}
		hostile.Status = StatusCompromised
		for _, sk := range Skills {
			hostile.Skills[sk] -= compromisePenalty
			if hostile.Skills[sk] < 0 {
				hostile.Skills[sk] = 0
			}
		}
		hostile.UpdatedAt = time.Now()
		if err := s.store.PutSpy(ctx, hostile); err != nil {
			logging.L(ctx).Error("persist flushed spy failed", "spy_id", hostile.ID, "error", err)
		}

		if s.sink != nil {
			s.sink.Publish(events.New(events.TypeSpyCaptured, events.SpyCapturedData{
				SpyID:      hostile.ID,
				Codename:   hostile.Codename,
				OwnerClan:  hostile.ClanID,
				TargetClan: actor.ClanID,
			}, hostile.ClanID))
			s.sink.Publish(events.New(events.TypeCounterIntelAlert, events.CounterIntelAlertData{
				TargetClan:  actor.ClanID,
				SpyCodename: hostile.Codename,
				SourceClan:  hostile.ClanID,
				MissionType: m.Type,
			}, actor.ClanID))
		}
	}
	return flushed, nil
}

// Retire takes a spy out of service for good. The record survives for
// history but the spy stops counting against the roster cap, freeing a
// slot for a fresh recruit. A spy on an active mission cannot retire
// until the mission resolves.
func (s *Service) Retire(ctx context.Context, actor clans.Actor, spyID string) (*Spy, error) {
	spy, err := s.store.GetSpy(ctx, spyID)
	if err != nil {
		return nil, err
	}
	if spy.OwnerID != actor.PlayerID {
		return nil, ErrNotSpyOwner
	}
	if spy.Status == StatusOnMission {
		return nil, ErrSpyUnavailable
	}
	if spy.Status == StatusRetired {
		return nil, ErrSpyRetired
	}

	spy.Status = StatusRetired
	spy.UpdatedAt = time.Now()
	if err := s.store.PutSpy(ctx, spy); err != nil {
		return nil, fmt.Errorf("persist retirement: %w", err)
	}
	logging.L(ctx).Info("spy retired", "spy_id", spy.ID, "codename", spy.Codename)
	return spy, nil
}

// MissionHistory returns a spy's missions, newest first.
func (s *Service) MissionHistory(ctx context.Context, spyID string) ([]*Mission, error) {
	if _, err := s.store.GetSpy(ctx, spyID); err != nil {
		return nil, err
	}
	return s.store.ListMissionsBySpy(ctx, spyID)
}

// GetSpy returns one spy.
func (s *Service) GetSpy(ctx context.Context, spyID string) (*Spy, error) {
	return s.store.GetSpy(ctx, spyID)
}

// ListSpies returns a player's roster.
func (s *Service) ListSpies(ctx context.Context, ownerID string) ([]*Spy, error) {
	return s.store.ListSpiesByOwner(ctx, ownerID)
}

// GetMission returns one mission.
func (s *Service) GetMission(ctx context.Context, missionID string) (*Mission, error) {
	return s.store.GetMission(ctx, missionID)
}

func (s *Service) ownedAvailableSpy(ctx context.Context, actor clans.Actor, spyID string) (*Spy, error) {
	spy, err := s.store.GetSpy(ctx, spyID)
	if err != nil {
		return nil, err
	}
	if spy.OwnerID != actor.PlayerID {
		return nil, ErrNotSpyOwner
	}
	if spy.Status != StatusAvailable {
		return nil, ErrSpyUnavailable
	}
	return spy, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
