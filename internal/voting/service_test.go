package voting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
)

type fakeRoster struct {
	members map[string]bool
	count   int
	leader  string
}

func (f *fakeRoster) MemberCount(ctx context.Context, clanID string) (int, error) {
	return f.count, nil
}

func (f *fakeRoster) LeaderID(ctx context.Context, clanID string) (string, error) {
	return f.leader, nil
}

func (f *fakeRoster) IsMember(ctx context.Context, clanID, playerID string) (bool, error) {
	return f.members[playerID], nil
}

type fakeExecutor struct {
	executed []string
}

func (f *fakeExecutor) Execute(ctx context.Context, v *Vote) error {
	f.executed = append(f.executed, v.ID)
	return nil
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	roster   *fakeRoster
	executor *fakeExecutor
	sink     *events.MemorySink
}

func newFixture(t *testing.T, memberCount int) *fixture {
	t.Helper()
	members := map[string]bool{"p_lead": true}
	names := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i := 0; i < memberCount-1 && i < len(names); i++ {
		members[names[i]] = true
	}
	f := &fixture{
		store:    NewMemoryStore(),
		roster:   &fakeRoster{members: members, count: memberCount, leader: "p_lead"},
		executor: &fakeExecutor{},
		sink:     events.NewMemorySink(),
	}
	f.svc = NewService(f.store, gamedata.Default(), f.roster, f.executor, f.sink)
	return f
}

func actor(playerID string) clans.Actor {
	return clans.Actor{PlayerID: playerID, Username: playerID, ClanID: "clan_a"}
}

func TestCreate(t *testing.T) {
	f := newFixture(t, 6)
	v, err := f.svc.Create(context.Background(), actor("p1"), "LAUNCH_AUTHORIZATION", "default", map[string]any{"missileId": "msl_1"})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, v.Status)
	// ceil(6 × 0.75) = 5.
	assert.Equal(t, 5, v.RequiredVotes)
	assert.Equal(t, 6, v.MemberCount)
	assert.Equal(t, []string{"p1"}, v.ForVoters, "proposer is auto-recorded in favor")
	assert.InDelta(t, gamedata.VoteLifetime.Seconds(), v.ExpiresAt.Sub(v.CreatedAt).Seconds(), 1)
	assert.Len(t, f.sink.ByType(events.TypeVoteCreated), 1)
}

func TestCreate_SeverityTiers(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	low, err := f.svc.Create(ctx, actor("p1"), "MINOR_ACTION", "low", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, low.RequiredVotes)

	maximal, err := f.svc.Create(ctx, actor("p1"), "DOOMSDAY", "maximal", nil)
	require.NoError(t, err)
	assert.Equal(t, 6, maximal.RequiredVotes)

	// Unknown severities fall back to the default tier.
	odd, err := f.svc.Create(ctx, actor("p1"), "ODD", "catastrophic", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, odd.RequiredVotes)
}

func TestCreate_NotMember(t *testing.T) {
	f := newFixture(t, 6)
	_, err := f.svc.Create(context.Background(), actor("outsider"), "LAUNCH_AUTHORIZATION", "default", nil)
	assert.ErrorIs(t, err, ErrNotClanMember)
}

func TestCreate_SoleMemberPassesImmediately(t *testing.T) {
	f := newFixture(t, 1)
	v, err := f.svc.Create(context.Background(), actor("p_lead"), "LAUNCH_AUTHORIZATION", "low", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, v.Status)
	assert.Equal(t, []string{v.ID}, f.executor.executed)
}

func TestCastVote_Passes(t *testing.T) {
	f := newFixture(t, 4) // required = ceil(4 × 0.75) = 3
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "LAUNCH_AUTHORIZATION", "default", nil)
	require.NoError(t, err)

	v, err = f.svc.CastVote(ctx, actor("p2"), v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, v.Status)

	v, err = f.svc.CastVote(ctx, actor("p3"), v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, v.Status)

	assert.Equal(t, []string{v.ID}, f.executor.executed, "action runs exactly once")
	assert.Len(t, f.sink.ByType(events.TypeVotePassed), 1)
}

func TestCastVote_FailsWhenUnreachable(t *testing.T) {
	// Six members, required 5. Two for, three against, one outstanding:
	// 2 + 1 < 5, so the vote fails on the fifth ballot.
	f := newFixture(t, 6)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "LAUNCH_AUTHORIZATION", "default", nil)
	require.NoError(t, err)

	v, err = f.svc.CastVote(ctx, actor("p2"), v.ID, true)
	require.NoError(t, err)
	for _, p := range []string{"p3", "p4"} {
		v, err = f.svc.CastVote(ctx, actor(p), v.ID, false)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, v.Status)
	}

	v, err = f.svc.CastVote(ctx, actor("p5"), v.ID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Empty(t, f.executor.executed)
	assert.Len(t, f.sink.ByType(events.TypeVoteFailed), 1)
}

func TestCastVote_DoubleVoteRejected(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "LAUNCH_AUTHORIZATION", "default", nil)
	require.NoError(t, err)

	_, err = f.svc.CastVote(ctx, actor("p1"), v.ID, false)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	_, err = f.svc.CastVote(ctx, actor("p2"), v.ID, true)
	require.NoError(t, err)
	_, err = f.svc.CastVote(ctx, actor("p2"), v.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestCastVote_ResolvedVoteRejectsBallots(t *testing.T) {
	f := newFixture(t, 2) // required = ceil(2 × 0.5) = 1 at "low"
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "MINOR_ACTION", "low", nil)
	require.NoError(t, err)
	require.Equal(t, StatusPassed, v.Status)

	_, err = f.svc.CastVote(ctx, actor("p_lead"), v.ID, true)
	assert.ErrorIs(t, err, ErrVoteNotActive)
}

func TestVeto(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "LAUNCH_AUTHORIZATION", "default", nil)
	require.NoError(t, err)

	_, err = f.svc.Veto(ctx, actor("p2"), v.ID, "too risky")
	assert.ErrorIs(t, err, ErrNotClanLeader)

	vetoed, err := f.svc.Veto(ctx, actor("p_lead"), v.ID, "too risky")
	require.NoError(t, err)
	assert.Equal(t, StatusVetoed, vetoed.Status)
	assert.Equal(t, "p_lead", vetoed.VetoedBy)
	assert.Equal(t, "too risky", vetoed.VetoReason)
	assert.Len(t, f.sink.ByType(events.TypeVoteVetoed), 1)

	// Veto is terminal; a second veto conflicts.
	_, err = f.svc.Veto(ctx, actor("p_lead"), v.ID, "again")
	assert.ErrorIs(t, err, ErrConflict)
}

func (f *fixture) expiredVote(t *testing.T, forVoters []string, required int) *Vote {
	t.Helper()
	v := &Vote{
		ID: "vote_1", ClanID: "clan_a", Type: "LAUNCH_AUTHORIZATION", Severity: "default",
		ProposerID: forVoters[0], ProposerName: forVoters[0],
		Status: StatusActive, ForVoters: forVoters,
		RequiredVotes: required, MemberCount: 6,
		CreatedAt: time.Now().Add(-49 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.store.Create(context.Background(), v))
	return v
}

func TestExpireDue_QuorumMetPasses(t *testing.T) {
	f := newFixture(t, 6)
	v := f.expiredVote(t, []string{"p1", "p2", "p3"}, 3)

	processed, failed, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)

	got, err := f.store.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, got.Status, "quorum met before expiry still passes")
	assert.Equal(t, []string{v.ID}, f.executor.executed)
}

func TestExpireDue_NoQuorumExpires(t *testing.T) {
	f := newFixture(t, 6)
	v := f.expiredVote(t, []string{"p1"}, 5)

	_, _, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)

	got, err := f.store.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Empty(t, f.executor.executed)
	assert.Len(t, f.sink.ByType(events.TypeVoteExpired), 1)
}

func TestExpireDue_SkipsResolved(t *testing.T) {
	f := newFixture(t, 6)
	v := f.expiredVote(t, []string{"p1"}, 5)
	require.NoError(t, f.store.Resolve(context.Background(), v.ID, StatusFailed, time.Now()))

	processed, failed, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, failed)
}

func TestForceExpire(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	v, err := f.svc.Create(ctx, actor("p1"), "LAUNCH_AUTHORIZATION", "default", nil)
	require.NoError(t, err)

	got, err := f.svc.ForceExpire(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	_, err = f.svc.ForceExpire(ctx, v.ID)
	assert.ErrorIs(t, err, ErrVoteNotActive)
}
