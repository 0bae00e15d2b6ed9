// Package gamedata holds the balance tables for the WMD warfare subsystem.
//
// Every cost, duration, probability, and threshold used by the treasury,
// missile, defense, spy, and voting services lives here, so the tables
// cannot drift between call sites. The built-in catalogue can be overridden
// with a JSON file (GAMEDATA_PATH).
package gamedata

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Global balance constants.
const (
	// MinClanSize is the membership floor below which no WMD funding is allowed.
	MinClanSize = 3

	// InterceptionCap limits the summed intercept chance of a battery set.
	InterceptionCap = 0.95

	// RefundVoluntary and RefundAdmin are the refund fractions for voluntary
	// cancellation and admin emergency intervention respectively.
	RefundVoluntary = 1.0
	RefundAdmin     = 0.5

	// Detonation damage is split across the target's assets.
	DamageShareUnits      = 0.70
	DamageShareFactories  = 0.20
	DamageShareStockpiles = 0.10
	MaxFactoriesDisabled  = 3

	// Detonation damage rolls vary around the warhead's primary damage.
	DamageVarianceMin = 0.95
	DamageVarianceMax = 1.05

	// CompromiseChance is the probability a detected spy is captured
	// rather than slipping away.
	CompromiseChance = 0.50

	// SabotageMaxSetback is the largest fraction of missile assembly
	// progress a single sabotage can undo.
	SabotageMaxSetback = 0.25

	// VoteLifetime is how long a vote stays open before the expiry sweep
	// resolves it.
	VoteLifetime = 48 * time.Hour

	// SabotageDetectionRisk is the detection probability for a sabotage
	// attempt, rolled independently of the sabotage outcome.
	SabotageDetectionRisk = 0.25
)

// Cost is a two-dimensional resource price.
type Cost struct {
	Metal  int64 `json:"metal"`
	Energy int64 `json:"energy"`
}

// IsZero reports whether both dimensions are zero.
func (c Cost) IsZero() bool { return c.Metal == 0 && c.Energy == 0 }

// Scale returns the cost multiplied by f, rounded down per dimension.
func (c Cost) Scale(f float64) Cost {
	return Cost{
		Metal:  int64(float64(c.Metal) * f),
		Energy: int64(float64(c.Energy) * f),
	}
}

// Add returns the element-wise sum.
func (c Cost) Add(o Cost) Cost {
	return Cost{Metal: c.Metal + o.Metal, Energy: c.Energy + o.Energy}
}

// WarheadSpec describes one warhead class.
type WarheadSpec struct {
	Tier                 int           `json:"tier"`
	Cost                 Cost          `json:"cost"`
	FlightTime           time.Duration `json:"flightTime"`
	PrimaryDamagePercent float64       `json:"primaryDamagePercent"`
}

// ComponentSpec prices missile component installation.
type ComponentSpec struct {
	BaseCost       Cost    `json:"baseCost"`
	TierMultiplier float64 `json:"tierMultiplier"` // cost = base × multiplier^(tier-1)
}

// BatterySpec describes one defense battery class.
type BatterySpec struct {
	Tier            int           `json:"tier"`
	Cost            Cost          `json:"cost"`
	InterceptChance float64       `json:"interceptChance"`
	Cooldown        time.Duration `json:"cooldown"`
}

// MissionSpec describes one spy mission type.
type MissionSpec struct {
	Duration       time.Duration      `json:"duration"`
	DetectionRisk  float64            `json:"detectionRisk"`
	SkillMinimums  map[string]int     `json:"skillMinimums"`
	RankBaseChance map[string]float64 `json:"rankBaseChance"`
}

// SpecializationSpec seeds a freshly recruited spy.
type SpecializationSpec struct {
	RecruitCost Cost           `json:"recruitCost"`
	BaseSkills  map[string]int `json:"baseSkills"`
}

// RankThreshold gates promotion to the next rank.
type RankThreshold struct {
	Experience int `json:"experience"`
	Missions   int `json:"missions"`
}

// Tables bundles every configurable balance table.
type Tables struct {
	Warheads        map[string]WarheadSpec        `json:"warheads"`
	Components      map[string]ComponentSpec      `json:"components"`
	Batteries       map[string]BatterySpec        `json:"batteries"`
	Missions        map[string]MissionSpec        `json:"missions"`
	Specializations map[string]SpecializationSpec `json:"specializations"`

	// RankPromotions is keyed by the rank being promoted INTO.
	RankPromotions map[string]RankThreshold `json:"rankPromotions"`

	// SpyCapByResearchTier caps spies per player by unlocked research tier.
	SpyCapByResearchTier []int `json:"spyCapByResearchTier"`

	// TrainingImprovement is the base skill gain per training intensity,
	// before diminishing returns.
	TrainingImprovement map[string]float64 `json:"trainingImprovement"`

	// VoteThresholds maps vote severity to the required approval fraction.
	VoteThresholds map[string]float64 `json:"voteThresholds"`

	// CounterIntelCost funds one counter-intelligence sweep.
	CounterIntelCost Cost `json:"counterIntelCost"`

	// SabotageDifficulty is the per-target-type difficulty subtracted from
	// the spy's sabotage skill fraction.
	SabotageDifficulty map[string]float64 `json:"sabotageDifficulty"`
}

// Default returns the built-in balance catalogue.
func Default() *Tables {
	return &Tables{
		Warheads: map[string]WarheadSpec{
			"TACTICAL": {
				Tier:                 1,
				Cost:                 Cost{Metal: 80000, Energy: 40000},
				FlightTime:           30 * time.Minute,
				PrimaryDamagePercent: 15,
			},
			"STRATEGIC": {
				Tier:                 2,
				Cost:                 Cost{Metal: 200000, Energy: 110000},
				FlightTime:           60 * time.Minute,
				PrimaryDamagePercent: 30,
			},
			"CONTINENTAL": {
				Tier:                 3,
				Cost:                 Cost{Metal: 450000, Energy: 260000},
				FlightTime:           2 * time.Hour,
				PrimaryDamagePercent: 50,
			},
		},
		Components: map[string]ComponentSpec{
			"warhead":    {BaseCost: Cost{Metal: 30000, Energy: 15000}, TierMultiplier: 1.6},
			"propulsion": {BaseCost: Cost{Metal: 22000, Energy: 14000}, TierMultiplier: 1.5},
			"guidance":   {BaseCost: Cost{Metal: 12000, Energy: 20000}, TierMultiplier: 1.5},
			"payload":    {BaseCost: Cost{Metal: 18000, Energy: 9000}, TierMultiplier: 1.4},
			"stealth":    {BaseCost: Cost{Metal: 14000, Energy: 18000}, TierMultiplier: 1.7},
		},
		Batteries: map[string]BatterySpec{
			"FLAK": {
				Tier:            1,
				Cost:            Cost{Metal: 40000, Energy: 20000},
				InterceptChance: 0.15,
				Cooldown:        20 * time.Minute,
			},
			"SAM": {
				Tier:            2,
				Cost:            Cost{Metal: 90000, Energy: 55000},
				InterceptChance: 0.30,
				Cooldown:        30 * time.Minute,
			},
			"AEGIS": {
				Tier:            3,
				Cost:            Cost{Metal: 180000, Energy: 120000},
				InterceptChance: 0.45,
				Cooldown:        45 * time.Minute,
			},
		},
		Missions: map[string]MissionSpec{
			"RECONNAISSANCE": {
				Duration:      30 * time.Minute,
				DetectionRisk: 0.15,
				SkillMinimums: map[string]int{"stealth": 20},
				RankBaseChance: map[string]float64{
					"ROOKIE": 0.50, "OPERATIVE": 0.60, "AGENT": 0.70, "VETERAN": 0.80, "ELITE": 0.88,
				},
			},
			"SURVEILLANCE": {
				Duration:      time.Hour,
				DetectionRisk: 0.20,
				SkillMinimums: map[string]int{"stealth": 30, "intelligence": 25},
				RankBaseChance: map[string]float64{
					"ROOKIE": 0.45, "OPERATIVE": 0.55, "AGENT": 0.65, "VETERAN": 0.75, "ELITE": 0.85,
				},
			},
			"INFILTRATION": {
				Duration:      2 * time.Hour,
				DetectionRisk: 0.35,
				SkillMinimums: map[string]int{"stealth": 40, "hacking": 30},
				RankBaseChance: map[string]float64{
					"ROOKIE": 0.30, "OPERATIVE": 0.42, "AGENT": 0.55, "VETERAN": 0.68, "ELITE": 0.80,
				},
			},
		},
		Specializations: map[string]SpecializationSpec{
			"INFILTRATOR": {
				RecruitCost: Cost{Metal: 25000, Energy: 15000},
				BaseSkills:  map[string]int{"stealth": 35, "hacking": 20, "sabotage": 15, "intelligence": 20},
			},
			"HACKER": {
				RecruitCost: Cost{Metal: 20000, Energy: 25000},
				BaseSkills:  map[string]int{"stealth": 20, "hacking": 35, "sabotage": 15, "intelligence": 25},
			},
			"SABOTEUR": {
				RecruitCost: Cost{Metal: 30000, Energy: 18000},
				BaseSkills:  map[string]int{"stealth": 25, "hacking": 15, "sabotage": 35, "intelligence": 15},
			},
			"ANALYST": {
				RecruitCost: Cost{Metal: 18000, Energy: 20000},
				BaseSkills:  map[string]int{"stealth": 15, "hacking": 20, "sabotage": 10, "intelligence": 40},
			},
		},
		RankPromotions: map[string]RankThreshold{
			"OPERATIVE": {Experience: 100, Missions: 3},
			"AGENT":     {Experience: 300, Missions: 8},
			"VETERAN":   {Experience: 700, Missions: 18},
			"ELITE":     {Experience: 1500, Missions: 35},
		},
		SpyCapByResearchTier: []int{2, 3, 5, 8},
		TrainingImprovement: map[string]float64{
			"light":    4,
			"standard": 8,
			"intense":  14,
		},
		VoteThresholds: map[string]float64{
			"low":         0.50,
			"significant": 0.66,
			"default":     0.75,
			"maximal":     0.90,
		},
		CounterIntelCost: Cost{Metal: 20000, Energy: 15000},
		SabotageDifficulty: map[string]float64{
			"MISSILE":   0.20,
			"RESOURCES": 0.15,
		},
	}
}

// Load returns the default tables, optionally overlaid with a JSON file.
// An empty path returns the defaults unchanged.
func Load(path string) (*Tables, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game data: %w", err)
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse game data: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate rejects tables that would break balance invariants.
func (t *Tables) Validate() error {
	if len(t.Warheads) == 0 {
		return fmt.Errorf("at least one warhead type is required")
	}
	for name, w := range t.Warheads {
		if w.Tier < 1 {
			return fmt.Errorf("warhead %s: tier must be >= 1", name)
		}
		if w.FlightTime <= 0 {
			return fmt.Errorf("warhead %s: flight time must be positive", name)
		}
	}
	for name, c := range t.Components {
		if c.TierMultiplier < 1 {
			return fmt.Errorf("component %s: tier multiplier must be >= 1", name)
		}
	}
	for name, b := range t.Batteries {
		if b.InterceptChance <= 0 || b.InterceptChance > InterceptionCap {
			return fmt.Errorf("battery %s: intercept chance must be in (0, %v]", name, InterceptionCap)
		}
	}
	for sev, frac := range t.VoteThresholds {
		if frac <= 0 || frac > 1 {
			return fmt.Errorf("vote threshold %s: fraction must be in (0, 1]", sev)
		}
	}
	return nil
}

// ComponentCost returns the install price of a component on a warhead of the
// given tier: base × multiplier^(tier-1).
func (t *Tables) ComponentCost(component string, tier int) (Cost, error) {
	spec, ok := t.Components[component]
	if !ok {
		return Cost{}, fmt.Errorf("unknown component %q", component)
	}
	mult := 1.0
	for i := 1; i < tier; i++ {
		mult *= spec.TierMultiplier
	}
	return spec.BaseCost.Scale(mult), nil
}

// SpyCap returns the per-player spy limit for a research tier. Tiers past
// the end of the table use the last entry.
func (t *Tables) SpyCap(researchTier int) int {
	if len(t.SpyCapByResearchTier) == 0 {
		return 0
	}
	if researchTier < 0 {
		researchTier = 0
	}
	if researchTier >= len(t.SpyCapByResearchTier) {
		researchTier = len(t.SpyCapByResearchTier) - 1
	}
	return t.SpyCapByResearchTier[researchTier]
}

// VoteThreshold returns the approval fraction for a severity, falling back
// to the "default" tier for unknown severities.
func (t *Tables) VoteThreshold(severity string) float64 {
	if frac, ok := t.VoteThresholds[severity]; ok {
		return frac
	}
	return t.VoteThresholds["default"]
}
