package voting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mbd888/warclan/internal/clans"
	"github.com/mbd888/warclan/internal/events"
	"github.com/mbd888/warclan/internal/gamedata"
	"github.com/mbd888/warclan/internal/idgen"
	"github.com/mbd888/warclan/internal/logging"
	"github.com/mbd888/warclan/internal/metrics"
	"github.com/mbd888/warclan/internal/traces"
)

// Roster answers clan membership and leadership questions.
type Roster interface {
	MemberCount(ctx context.Context, clanID string) (int, error)
	LeaderID(ctx context.Context, clanID string) (string, error)
	IsMember(ctx context.Context, clanID, playerID string) (bool, error)
}

// ActionExecutor carries out the action a passed vote authorizes, for
// example granting a missile launch authorization. The executor runs
// exactly once per vote: only the process that wins the active -> passed
// transition calls it. Execution failures are logged and do not roll the
// vote back.
type ActionExecutor interface {
	Execute(ctx context.Context, v *Vote) error
}

// NoopExecutor ignores passed votes. Used when no action wiring exists
// for a deployment.
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, v *Vote) error { return nil }

// Service runs the clan voting engine.
type Service struct {
	store    Store
	tables   *gamedata.Tables
	roster   Roster
	executor ActionExecutor
	sink     events.Sink
}

// NewService creates a voting service.
func NewService(store Store, tables *gamedata.Tables, roster Roster, executor ActionExecutor, sink events.Sink) *Service {
	if executor == nil {
		executor = NoopExecutor{}
	}
	return &Service{store: store, tables: tables, roster: roster, executor: executor, sink: sink}
}

// Create opens a vote. The approval threshold is tiered by severity,
// membership is snapshotted, and the proposer is auto-recorded in favor.
func (s *Service) Create(ctx context.Context, actor clans.Actor, voteType, severity string, details map[string]any) (*Vote, error) {
	ctx, span := traces.StartSpan(ctx, "voting.Create", traces.ClanID(actor.ClanID))
	defer span.End()

	member, err := s.roster.IsMember(ctx, actor.ClanID, actor.PlayerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotClanMember
	}

	members, err := s.roster.MemberCount(ctx, actor.ClanID)
	if err != nil {
		return nil, err
	}
	threshold := s.tables.VoteThreshold(severity)
	required := int(math.Ceil(float64(members) * threshold))

	now := time.Now()
	v := &Vote{
		ID:            idgen.WithPrefix("vote"),
		ClanID:        actor.ClanID,
		Type:          voteType,
		Severity:      severity,
		Details:       details,
		ProposerID:    actor.PlayerID,
		ProposerName:  actor.Username,
		Status:        StatusActive,
		ForVoters:     []string{actor.PlayerID},
		RequiredVotes: required,
		MemberCount:   members,
		CreatedAt:     now,
		ExpiresAt:     now.Add(gamedata.VoteLifetime),
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("persist vote: %w", err)
	}

	s.publish(events.TypeVoteCreated, v)

	// A one-member quorum can pass on the proposer's own ballot.
	if v.QuorumMet() {
		if err := s.resolve(ctx, v, StatusPassed); err != nil && !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return v, nil
}

// CastVote records a ballot and recomputes the outcome. The ballot append
// is atomic in the store, so two concurrent votes by the same player
// cannot both land.
func (s *Service) CastVote(ctx context.Context, actor clans.Actor, voteID string, inFavor bool) (*Vote, error) {
	ctx, span := traces.StartSpan(ctx, "voting.CastVote", traces.ClanID(actor.ClanID))
	defer span.End()

	v, err := s.store.Get(ctx, voteID)
	if err != nil {
		return nil, err
	}
	member, err := s.roster.IsMember(ctx, v.ClanID, actor.PlayerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotClanMember
	}

	v, err = s.store.AddBallot(ctx, voteID, actor.PlayerID, inFavor)
	if err != nil {
		return nil, err
	}

	switch {
	case v.QuorumMet():
		err = s.resolve(ctx, v, StatusPassed)
	case v.Unreachable():
		err = s.resolve(ctx, v, StatusFailed)
	}
	if err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return v, nil
}

// Veto kills an active vote. Leader only, irreversible, bypasses counts.
func (s *Service) Veto(ctx context.Context, actor clans.Actor, voteID, reason string) (*Vote, error) {
	ctx, span := traces.StartSpan(ctx, "voting.Veto", traces.ClanID(actor.ClanID))
	defer span.End()

	v, err := s.store.Get(ctx, voteID)
	if err != nil {
		return nil, err
	}
	leader, err := s.roster.LeaderID(ctx, v.ClanID)
	if err != nil {
		return nil, err
	}
	if actor.PlayerID != leader {
		return nil, ErrNotClanLeader
	}

	now := time.Now()
	if err := s.store.Veto(ctx, voteID, actor.PlayerID, reason, now); err != nil {
		return nil, err
	}
	v.Status = StatusVetoed
	v.VetoedBy = actor.PlayerID
	v.VetoReason = reason
	v.ResolvedAt = &now

	metrics.VotesResolvedTotal.WithLabelValues(StatusVetoed).Inc()
	s.publish(events.TypeVoteVetoed, v)
	return v, nil
}

// ForceExpire is the admin out-of-band resolution: the vote resolves the
// same way the expiry sweep would resolve it right now.
func (s *Service) ForceExpire(ctx context.Context, voteID string) (*Vote, error) {
	v, err := s.store.Get(ctx, voteID)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusActive {
		return nil, ErrVoteNotActive
	}
	if err := s.expireOne(ctx, v); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, voteID)
}

// ExpireDue resolves every active vote past its expiry. A vote that
// already reached quorum passes even though it expired; the rest expire.
// Conflicts are absorbed. Used by the scheduler sweep.
func (s *Service) ExpireDue(ctx context.Context) (processed, failed int, err error) {
	due, err := s.store.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, 0, err
	}
	for _, v := range due {
		err := s.expireOne(ctx, v)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			logging.L(ctx).Error("expire vote failed", "vote_id", v.ID, "error", err)
			failed++
			continue
		}
		processed++
	}
	return processed, failed, nil
}

func (s *Service) expireOne(ctx context.Context, v *Vote) error {
	to := StatusExpired
	if v.QuorumMet() {
		to = StatusPassed
	}
	return s.resolve(ctx, v, to)
}

// resolve performs the conditional terminal transition and, on winning a
// pass, runs the action exactly once.
func (s *Service) resolve(ctx context.Context, v *Vote, to string) error {
	now := time.Now()
	if err := s.store.Resolve(ctx, v.ID, to, now); err != nil {
		return err
	}
	v.Status = to
	v.ResolvedAt = &now

	metrics.VotesResolvedTotal.WithLabelValues(to).Inc()

	if to == StatusPassed {
		if err := s.executor.Execute(ctx, v); err != nil {
			logging.L(ctx).Error("vote action execution failed",
				"vote_id", v.ID, "vote_type", v.Type, "error", err)
		}
	}

	switch to {
	case StatusPassed:
		s.publish(events.TypeVotePassed, v)
	case StatusFailed:
		s.publish(events.TypeVoteFailed, v)
	case StatusExpired:
		s.publish(events.TypeVoteExpired, v)
	}
	return nil
}

func (s *Service) publish(t events.Type, v *Vote) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(events.New(t, events.VoteData{
		VoteID:       v.ID,
		ClanID:       v.ClanID,
		VoteType:     v.Type,
		Status:       v.Status,
		ForVotes:     len(v.ForVoters),
		AgainstVotes: len(v.AgainstVoters),
		Required:     v.RequiredVotes,
	}, v.ClanID))
}

// Get returns one vote.
func (s *Service) Get(ctx context.Context, voteID string) (*Vote, error) {
	return s.store.Get(ctx, voteID)
}

// ListByClan returns a clan's votes, newest first.
func (s *Service) ListByClan(ctx context.Context, clanID string) ([]*Vote, error) {
	return s.store.ListByClan(ctx, clanID)
}
