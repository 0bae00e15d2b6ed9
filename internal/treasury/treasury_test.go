package treasury

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
)

type fakeMembers struct {
	counts map[string]int
}

func (f *fakeMembers) MemberCount(ctx context.Context, clanID string) (int, error) {
	return f.counts[clanID], nil
}

func newLedger(t *testing.T, memberCount int) (*Ledger, *MemoryStore, *events.MemorySink) {
	t.Helper()
	store := NewMemoryStore()
	sink := events.NewMemorySink()
	members := &fakeMembers{counts: map[string]int{"clan_a": memberCount}}
	return NewLedger(store, members, sink), store, sink
}

func TestDebit_SharedCost(t *testing.T) {
	ledger, store, sink := newLedger(t, 4)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 100000, 50000))

	txn, err := ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "tactical warhead",
		gamedata.Cost{Metal: 80000, Energy: 40000})
	require.NoError(t, err)

	assert.Equal(t, int64(20000), txn.PerMemberMetal)
	assert.Equal(t, int64(10000), txn.PerMemberEnergy)
	assert.Equal(t, 4, txn.MemberCount)

	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), treasury.Metal)
	assert.Equal(t, int64(10000), treasury.Energy)

	debits := sink.ByType(events.TypeTreasuryDebit)
	require.Len(t, debits, 1)
}

func TestDebit_PerMemberShareRoundsUp(t *testing.T) {
	ledger, store, _ := newLedger(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 100000, 100000))

	txn, err := ledger.Debit(ctx, "clan_a", "battery_deploy", "p1", "Alice", "",
		gamedata.Cost{Metal: 100, Energy: 10})
	require.NoError(t, err)

	// ceil(100/3) and ceil(10/3)
	assert.Equal(t, int64(34), txn.PerMemberMetal)
	assert.Equal(t, int64(4), txn.PerMemberEnergy)
}

func TestDebit_InsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	ledger, store, _ := newLedger(t, 4)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 50000, 50000))

	// Enough energy, not enough metal. Neither balance may move.
	_, err := ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "",
		gamedata.Cost{Metal: 80000, Energy: 40000})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), treasury.Metal)
	assert.Equal(t, int64(50000), treasury.Energy)
}

func TestDebit_ClanTooSmall(t *testing.T) {
	ledger, store, _ := newLedger(t, 2)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 1000000, 1000000))

	_, err := ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "",
		gamedata.Cost{Metal: 100, Energy: 100})
	assert.ErrorIs(t, err, ErrClanTooSmall)
}

func TestDebit_ConcurrentRace(t *testing.T) {
	ledger, store, _ := newLedger(t, 4)
	ctx := context.Background()

	// Balance covers exactly one of the two purchases.
	require.NoError(t, store.Credit(ctx, "clan_a", 80000, 40000))

	cost := gamedata.Cost{Metal: 80000, Energy: 40000}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "", cost)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case err == ErrInsufficientFunds:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one debit must win")
	assert.Equal(t, 1, insufficient)

	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Zero(t, treasury.Metal)
	assert.Zero(t, treasury.Energy)
}

func TestValidateFunds(t *testing.T) {
	ledger, store, _ := newLedger(t, 4)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 60000, 50000))

	quote, err := ledger.ValidateFunds(ctx, "clan_a", gamedata.Cost{Metal: 80000, Energy: 40000})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	require.NotNil(t, quote)
	assert.Equal(t, int64(20000), quote.ShortfallMetal)
	assert.Zero(t, quote.ShortfallEnergy)

	quote, err = ledger.ValidateFunds(ctx, "clan_a", gamedata.Cost{Metal: 60000, Energy: 40000})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), quote.PerMemberMetal)
	assert.Equal(t, int64(10000), quote.PerMemberEnergy)

	// Validation never spends.
	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), treasury.Metal)
}

func TestRefund_ExactlyOnce(t *testing.T) {
	ledger, store, sink := newLedger(t, 4)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 100000, 50000))

	txn, err := ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "",
		gamedata.Cost{Metal: 80000, Energy: 40000})
	require.NoError(t, err)

	refunded, err := ledger.Refund(ctx, txn.ID, gamedata.RefundAdmin, "admin disarm")
	require.NoError(t, err)
	assert.True(t, refunded.Refunded)
	assert.Equal(t, "admin disarm", refunded.RefundReason)

	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), treasury.Metal)
	assert.Equal(t, int64(30000), treasury.Energy)

	// Second refund must fail and must not credit again.
	_, err = ledger.Refund(ctx, txn.ID, gamedata.RefundVoluntary, "try again")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)

	treasury, err = ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), treasury.Metal)

	assert.Len(t, sink.ByType(events.TypeTreasuryRefund), 1)
}

func TestRefund_FullFraction(t *testing.T) {
	ledger, store, _ := newLedger(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 80000, 40000))

	txn, err := ledger.Debit(ctx, "clan_a", "missile_create", "p1", "Alice", "",
		gamedata.Cost{Metal: 80000, Energy: 40000})
	require.NoError(t, err)

	_, err = ledger.Refund(ctx, txn.ID, gamedata.RefundVoluntary, "voluntary disassembly")
	require.NoError(t, err)

	treasury, err := ledger.GetTreasury(ctx, "clan_a")
	require.NoError(t, err)
	assert.Equal(t, int64(80000), treasury.Metal)
	assert.Equal(t, int64(40000), treasury.Energy)
}

func TestRefund_UnknownTransaction(t *testing.T) {
	ledger, _, _ := newLedger(t, 3)
	_, err := ledger.Refund(context.Background(), "txn_missing", 0.5, "x")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestHistory_NewestFirst(t *testing.T) {
	ledger, store, _ := newLedger(t, 3)
	ctx := context.Background()
	require.NoError(t, store.Credit(ctx, "clan_a", 1000000, 1000000))

	for i := 0; i < 3; i++ {
		_, err := ledger.Debit(ctx, "clan_a", "spy_recruit", "p1", "Alice", "",
			gamedata.Cost{Metal: 1000, Energy: 500})
		require.NoError(t, err)
	}

	txns, err := ledger.History(ctx, "clan_a", 2)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
	assert.False(t, txns[0].CreatedAt.Before(txns[1].CreatedAt))
}
