package defense

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/roll"
	"github.com/mbd888/warclan/internal/treasury"
)

type fakeFunder struct {
	debits []gamedata.Cost
	err    error
}

// fakeMemberCount stands in for the clan roster when splitting costs.
const fakeMemberCount = 4

func (f *fakeFunder) Debit(ctx context.Context, clanID, purchaseType, requesterID, requesterName, description string, cost gamedata.Cost) (*treasury.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.debits = append(f.debits, cost)
	return &treasury.Transaction{
		ID: "txn_test", ClanID: clanID, PurchaseType: purchaseType,
		Metal:           cost.Metal,
		Energy:          cost.Energy,
		PerMemberMetal:  (cost.Metal + fakeMemberCount - 1) / fakeMemberCount,
		PerMemberEnergy: (cost.Energy + fakeMemberCount - 1) / fakeMemberCount,
		MemberCount:     fakeMemberCount,
	}, nil
}

var testActor = clans.Actor{PlayerID: "p1", Username: "Alice", ClanID: "clan_a"}

func newDefense(t *testing.T, seed int64) (*Service, *MemoryStore, *fakeFunder, *events.MemorySink) {
	t.Helper()
	store := NewMemoryStore()
	funder := &fakeFunder{}
	sink := events.NewMemorySink()
	svc := NewService(store, gamedata.Default(), funder, roll.NewSeeded(seed), sink)
	return svc, store, funder, sink
}

func TestDeploy(t *testing.T) {
	svc, _, funder, sink := newDefense(t, 1)
	ctx := context.Background()

	b, txn, err := svc.Deploy(ctx, testActor, "SAM")
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, b.Status)
	assert.Equal(t, 100, b.Health)
	assert.Equal(t, 0.30, b.InterceptChance)
	assert.Equal(t, "p1", b.OwnerID)

	require.Len(t, funder.debits, 1)
	assert.Equal(t, gamedata.Cost{Metal: 90000, Energy: 55000}, funder.debits[0])

	// The caller sees the per-member split of the debit.
	require.NotNil(t, txn)
	assert.Equal(t, int64(22500), txn.PerMemberMetal)
	assert.Equal(t, int64(13750), txn.PerMemberEnergy)
	assert.Equal(t, fakeMemberCount, txn.MemberCount)

	assert.Len(t, sink.ByType(events.TypeBatteryDeployed), 1)
}

func TestDeploy_UnknownType(t *testing.T) {
	svc, _, funder, _ := newDefense(t, 1)
	_, _, err := svc.Deploy(context.Background(), testActor, "LASER")
	assert.ErrorIs(t, err, ErrUnknownBatteryType)
	assert.Empty(t, funder.debits, "no debit for a rejected deploy")
}

func TestDeploy_InsufficientFunds(t *testing.T) {
	svc, store, funder, _ := newDefense(t, 1)
	funder.err = treasury.ErrInsufficientFunds

	_, _, err := svc.Deploy(context.Background(), testActor, "FLAK")
	assert.ErrorIs(t, err, treasury.ErrInsufficientFunds)

	batteries, err := store.ListByOwner(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, batteries)
}

func seedBattery(t *testing.T, store *MemoryStore, id, btype string, chance float64, status string, health int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.PutBattery(context.Background(), &Battery{
		ID: id, OwnerID: "target", ClanID: "clan_t",
		Type: btype, InterceptChance: chance,
		Health: health, Status: status,
		CreatedAt: now, UpdatedAt: now,
	}))
}

func TestInterception_CapAndCooldown(t *testing.T) {
	svc, store, _, _ := newDefense(t, 7)
	ctx := context.Background()

	// Three AEGIS batteries sum to 1.35, which must be capped.
	seedBattery(t, store, "bty_a", "AEGIS", 0.45, StatusIdle, 100)
	seedBattery(t, store, "bty_b", "AEGIS", 0.45, StatusActive, 100)
	seedBattery(t, store, "bty_c", "AEGIS", 0.45, StatusIdle, 80)

	e, err := svc.PlanInterception(ctx, "target")
	require.NoError(t, err)
	require.NoError(t, svc.CommitEngagement(ctx, e))
	result := e.Result

	assert.Equal(t, gamedata.InterceptionCap, result.TotalChance)
	assert.Equal(t, 3, result.Engaged)

	// Every eligible battery recorded the attempt and went on cooldown.
	batteries, err := store.ListByOwner(ctx, "target")
	require.NoError(t, err)
	kills := 0
	for _, b := range batteries {
		assert.Equal(t, 1, b.Attempts, "battery %s", b.ID)
		assert.Equal(t, StatusCooldown, b.Status, "battery %s", b.ID)
		require.NotNil(t, b.CooldownUntil, "battery %s", b.ID)
		kills += b.Kills
	}

	if result.Intercepted {
		assert.Equal(t, 1, kills, "exactly one battery gets the kill")
		assert.NotEmpty(t, result.BatteryID)
	} else {
		assert.Zero(t, kills)
	}
}

func TestInterception_HighestChanceWins(t *testing.T) {
	// With a 0.95 total the engagement succeeds on most seeds; find one
	// deterministically and then check attribution.
	for seed := int64(0); seed < 20; seed++ {
		svc, store, _, _ := newDefense(t, seed)
		ctx := context.Background()
		seedBattery(t, store, "bty_flak", "FLAK", 0.15, StatusIdle, 100)
		seedBattery(t, store, "bty_aegis", "AEGIS", 0.45, StatusIdle, 100)
		seedBattery(t, store, "bty_sam", "SAM", 0.30, StatusIdle, 100)

		e, err := svc.PlanInterception(ctx, "target")
		require.NoError(t, err)
		if !e.Intercepted() {
			continue
		}
		require.NoError(t, svc.CommitEngagement(ctx, e))

		assert.Equal(t, "bty_aegis", e.Result.BatteryID)
		winner, err := store.GetBattery(ctx, "bty_aegis")
		require.NoError(t, err)
		assert.Equal(t, 1, winner.Kills)
		return
	}
	t.Fatal("no seed in range produced an interception at 0.90 total chance")
}

func TestInterception_ExcludesIneligible(t *testing.T) {
	svc, store, _, _ := newDefense(t, 3)
	ctx := context.Background()

	seedBattery(t, store, "bty_cd", "SAM", 0.30, StatusCooldown, 100)
	seedBattery(t, store, "bty_dmg", "SAM", 0.30, StatusDamaged, 100)
	seedBattery(t, store, "bty_dead", "SAM", 0.30, StatusIdle, 0)

	e, err := svc.PlanInterception(ctx, "target")
	require.NoError(t, err)
	assert.False(t, e.Intercepted())
	assert.Zero(t, e.Result.Engaged)
	assert.Zero(t, e.Result.TotalChance)
}

func TestInterception_NoBatteries(t *testing.T) {
	svc, _, _, _ := newDefense(t, 3)
	e, err := svc.PlanInterception(context.Background(), "undefended")
	require.NoError(t, err)
	assert.False(t, e.Intercepted())
	require.NoError(t, svc.CommitEngagement(context.Background(), e))
}

func TestPlanInterception_DefersWrites(t *testing.T) {
	svc, store, _, _ := newDefense(t, 7)
	ctx := context.Background()

	seedBattery(t, store, "bty_a", "AEGIS", 0.45, StatusIdle, 100)
	seedBattery(t, store, "bty_b", "SAM", 0.30, StatusActive, 100)

	e, err := svc.PlanInterception(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Result.Engaged)

	// Planning alone must leave every battery untouched: no attempts,
	// no kills, no cooldown.
	batteries, err := store.ListByOwner(ctx, "target")
	require.NoError(t, err)
	for _, b := range batteries {
		assert.Zero(t, b.Attempts, "battery %s", b.ID)
		assert.Zero(t, b.Kills, "battery %s", b.ID)
		assert.Nil(t, b.CooldownUntil, "battery %s", b.ID)
		assert.NotEqual(t, StatusCooldown, b.Status, "battery %s", b.ID)
	}

	// Committing the same plan applies the deferred writes.
	require.NoError(t, svc.CommitEngagement(ctx, e))
	batteries, err = store.ListByOwner(ctx, "target")
	require.NoError(t, err)
	for _, b := range batteries {
		assert.Equal(t, 1, b.Attempts, "battery %s", b.ID)
		assert.Equal(t, StatusCooldown, b.Status, "battery %s", b.ID)
	}
}

func TestRecoverCooldowns(t *testing.T) {
	svc, store, _, _ := newDefense(t, 1)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_done", OwnerID: "p1", Type: "FLAK",
		Health: 100, Status: StatusCooldown, CooldownUntil: &past,
	}))
	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_waiting", OwnerID: "p1", Type: "FLAK",
		Health: 100, Status: StatusCooldown, CooldownUntil: &future,
	}))

	recovered, err := svc.RecoverCooldowns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	done, err := store.GetBattery(ctx, "bty_done")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, done.Status)
	assert.Nil(t, done.CooldownUntil)

	waiting, err := store.GetBattery(ctx, "bty_waiting")
	require.NoError(t, err)
	assert.Equal(t, StatusCooldown, waiting.Status)
}

func TestRepair(t *testing.T) {
	svc, store, funder, _ := newDefense(t, 1)
	ctx := context.Background()

	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_hurt", OwnerID: "p1", ClanID: "clan_a", Type: "SAM",
		Health: 40, Status: StatusDamaged,
	}))

	b, err := svc.Repair(ctx, testActor, "bty_hurt")
	require.NoError(t, err)
	assert.Equal(t, 100, b.Health)
	assert.Equal(t, StatusIdle, b.Status)

	// 60% missing health at half the deploy price.
	require.Len(t, funder.debits, 1)
	assert.Equal(t, int64(27000), funder.debits[0].Metal)
	assert.Equal(t, int64(16500), funder.debits[0].Energy)
}

func TestRepair_NotDamaged(t *testing.T) {
	svc, store, _, _ := newDefense(t, 1)
	ctx := context.Background()
	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_fine", OwnerID: "p1", ClanID: "clan_a", Type: "SAM",
		Health: 100, Status: StatusIdle,
	}))

	_, err := svc.Repair(ctx, testActor, "bty_fine")
	assert.ErrorIs(t, err, ErrNotDamaged)
}

func TestDismantle_OwnershipEnforced(t *testing.T) {
	svc, store, _, _ := newDefense(t, 1)
	ctx := context.Background()
	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_x", OwnerID: "someone_else", Type: "FLAK", Health: 100, Status: StatusIdle,
	}))

	err := svc.Dismantle(ctx, testActor, "bty_x")
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, store.PutBattery(ctx, &Battery{
		ID: "bty_mine", OwnerID: "p1", Type: "FLAK", Health: 100, Status: StatusIdle,
	}))
	require.NoError(t, svc.Dismantle(ctx, testActor, "bty_mine"))

	_, err = store.GetBattery(ctx, "bty_mine")
	assert.ErrorIs(t, err, ErrBatteryNotFound)
}
