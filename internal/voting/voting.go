// Package voting implements clan decision votes with severity-tiered
// approval thresholds, leader veto, and scheduled expiry.
package voting

import (
	"context"
	"errors"
	"time"
)

// Vote statuses. active is the only non-terminal status; every transition
// out of it is conditional, and zero rows surfaces as ErrConflict.
const (
	StatusActive  = "active"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusVetoed  = "vetoed"
	StatusExpired = "expired"
)

// Severities order the approval thresholds from gamedata.VoteThresholds.
var Severities = []string{"low", "significant", "default", "maximal"}

var (
	ErrVoteNotFound  = errors.New("vote not found")
	ErrVoteNotActive = errors.New("vote is no longer active")
	ErrAlreadyVoted  = errors.New("player has already voted")
	ErrNotClanMember = errors.New("player is not a clan member")
	ErrNotClanLeader = errors.New("only the clan leader may veto")
	ErrConflict      = errors.New("vote already resolved by another process")
)

// Vote is one clan decision in flight. Membership is snapshotted at
// creation so the quorum math stays stable while the vote runs.
type Vote struct {
	ID            string         `json:"id"`
	ClanID        string         `json:"clanId"`
	Type          string         `json:"type"`
	Severity      string         `json:"severity"`
	Details       map[string]any `json:"details,omitempty"`
	ProposerID    string         `json:"proposerId"`
	ProposerName  string         `json:"proposerName"`
	Status        string         `json:"status"`
	ForVoters     []string       `json:"forVoters"`
	AgainstVoters []string       `json:"againstVoters"`
	RequiredVotes int            `json:"requiredVotes"`
	MemberCount   int            `json:"memberCount"`
	VetoedBy      string         `json:"vetoedBy,omitempty"`
	VetoReason    string         `json:"vetoReason,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	ResolvedAt    *time.Time     `json:"resolvedAt,omitempty"`
}

// HasVoted reports whether the player appears on either list.
func (v *Vote) HasVoted(playerID string) bool {
	for _, p := range v.ForVoters {
		if p == playerID {
			return true
		}
	}
	for _, p := range v.AgainstVoters {
		if p == playerID {
			return true
		}
	}
	return false
}

// QuorumMet reports whether the for-votes already reach the requirement.
func (v *Vote) QuorumMet() bool {
	return len(v.ForVoters) >= v.RequiredVotes
}

// Unreachable reports whether the vote can no longer pass: even if every
// remaining member voted for, the requirement would not be met.
func (v *Vote) Unreachable() bool {
	remaining := v.MemberCount - len(v.ForVoters) - len(v.AgainstVoters)
	if remaining < 0 {
		remaining = 0
	}
	return len(v.ForVoters)+remaining < v.RequiredVotes
}

// Store persists votes.
type Store interface {
	Create(ctx context.Context, v *Vote) error
	Get(ctx context.Context, voteID string) (*Vote, error)
	ListByClan(ctx context.Context, clanID string) ([]*Vote, error)

	// AddBallot atomically appends the voter to one list. The update is
	// conditional on the vote being active and the voter appearing on
	// neither list; it returns the vote as of after the ballot.
	AddBallot(ctx context.Context, voteID, voterID string, inFavor bool) (*Vote, error)

	// Resolve transitions active -> passed|failed|expired. ErrConflict when
	// another process already resolved the vote.
	Resolve(ctx context.Context, voteID, to string, at time.Time) error

	// Veto transitions active -> vetoed, recording who and why.
	Veto(ctx context.Context, voteID, leaderID, reason string, at time.Time) error

	ListExpired(ctx context.Context, now time.Time) ([]*Vote, error)
}
