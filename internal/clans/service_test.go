package clans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/warclan/internal/roll"
)

func seedBase(t *testing.T, store *MemoryStore, playerID string) *Base {
	t.Helper()
	base := &Base{
		PlayerID: playerID,
		ClanID:   "clan_target",
		Units: map[string]int{
			"infantry": 600,
			"armor":    300,
			"aircraft": 100,
		},
		Factories: []Factory{
			{ID: "fac_1", Kind: "munitions"},
			{ID: "fac_2", Kind: "vehicles"},
			{ID: "fac_3", Kind: "refinery"},
			{ID: "fac_4", Kind: "munitions"},
		},
		MetalStock:    100000,
		EnergyStock:   50000,
		SecurityLevel: 0.2,
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, store.PutBase(context.Background(), base))
	return base
}

func TestApplyDetonation_DamageSplit(t *testing.T) {
	store := NewMemoryStore()
	seedBase(t, store, "p1")
	svc := NewService(store, roll.NewSeeded(1))
	ctx := context.Background()

	report, err := svc.ApplyDetonation(ctx, "p1", 30)
	require.NoError(t, err)

	// 70% of 30% destroys 21% of 1000 units.
	assert.Equal(t, 210, report.UnitsDestroyed)

	// Factory hits are capped at three per strike.
	assert.GreaterOrEqual(t, report.FactoriesDisabled, 1)
	assert.LessOrEqual(t, report.FactoriesDisabled, 3)

	// 10% of 30% drains 3% of stockpiles.
	assert.Equal(t, int64(3000), report.MetalLost)
	assert.Equal(t, int64(1500), report.EnergyLost)

	base, err := svc.GetBase(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 790, base.UnitCount())
	assert.Equal(t, int64(97000), base.MetalStock)
}

func TestApplyDetonation_EmptyBase(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutBase(context.Background(), &Base{PlayerID: "p2", ClanID: "c"}))
	svc := NewService(store, roll.NewSeeded(1))

	report, err := svc.ApplyDetonation(context.Background(), "p2", 50)
	require.NoError(t, err)
	assert.Zero(t, report.UnitsDestroyed)
	assert.Zero(t, report.FactoriesDisabled)
	assert.Zero(t, report.MetalLost)
}

func TestApplyDetonation_NeverDestroysMoreThanRoster(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutBase(context.Background(), &Base{
		PlayerID: "p3",
		ClanID:   "c",
		Units:    map[string]int{"infantry": 5},
	}))
	svc := NewService(store, roll.NewSeeded(9))

	report, err := svc.ApplyDetonation(context.Background(), "p3", 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, report.UnitsDestroyed, 5)
}

func TestFactoryRecovery(t *testing.T) {
	store := NewMemoryStore()
	past := time.Now().Add(-time.Minute)
	require.NoError(t, store.PutBase(context.Background(), &Base{
		PlayerID: "p4",
		ClanID:   "c",
		Factories: []Factory{
			{ID: "fac_1", Kind: "munitions", Disabled: true, DisabledUntil: &past},
			{ID: "fac_2", Kind: "vehicles", Disabled: true}, // no recovery time set
		},
	}))
	svc := NewService(store, roll.NewSeeded(1))

	base, err := svc.GetBase(context.Background(), "p4")
	require.NoError(t, err)
	assert.False(t, base.Factories[0].Disabled)
	assert.True(t, base.Factories[1].Disabled)
}

func TestApplyResourceWaste_FloorsAtZero(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutBase(context.Background(), &Base{
		PlayerID:    "p5",
		ClanID:      "c",
		MetalStock:  100,
		EnergyStock: 100,
	}))
	svc := NewService(store, roll.NewSeeded(1))
	ctx := context.Background()

	require.NoError(t, svc.ApplyResourceWaste(ctx, "p5", 500, 40))

	base, err := svc.GetBase(ctx, "p5")
	require.NoError(t, err)
	assert.Equal(t, int64(0), base.MetalStock)
	assert.Equal(t, int64(60), base.EnergyStock)
}

func TestMembershipQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.PutClan(ctx, &Clan{
		ID:           "clan_a",
		Name:         "Iron Pact",
		LeaderID:     "p_leader",
		MemberIDs:    []string{"p_leader", "p_2", "p_3", "p_4"},
		ResearchTier: 2,
	}))
	svc := NewService(store, roll.NewSeeded(1))

	count, err := svc.MemberCount(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	leader, err := svc.LeaderID(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, "p_leader", leader)

	ok, err := svc.IsMember(ctx, "clan_a", "p_2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsMember(ctx, "clan_a", "p_stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.MemberCount(ctx, "clan_missing")
	assert.ErrorIs(t, err, ErrClanNotFound)
}
