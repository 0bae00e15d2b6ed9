package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemorySink_CollectsAndFilters(t *testing.T) {
	sink := NewMemorySink()

	sink.Publish(New(TypeMissileLaunched, MissileLaunchedData{MissileID: "msl_1"}, "clan_a", "clan_b"))
	sink.Publish(New(TypeVotePassed, VoteData{VoteID: "vote_1"}, "clan_a"))
	sink.Publish(New(TypeMissileLaunched, MissileLaunchedData{MissileID: "msl_2"}, "clan_c"))

	assert.Len(t, sink.Events(), 3)
	assert.Len(t, sink.ByType(TypeMissileLaunched), 2)
	assert.Len(t, sink.ByType(TypeVoteVetoed), 0)
}

func TestClientWants_TypeFilter(t *testing.T) {
	c := &Client{sub: Subscription{EventTypes: []Type{TypeVotePassed}}}

	assert.True(t, c.wants(New(TypeVotePassed, nil, "clan_a")))
	assert.False(t, c.wants(New(TypeVoteFailed, nil, "clan_a")))
}

func TestClientWants_ClanFilter(t *testing.T) {
	c := &Client{sub: Subscription{ClanIDs: []string{"clan_a"}}}

	assert.True(t, c.wants(New(TypeMissileDetonated, nil, "clan_a", "clan_b")))
	assert.False(t, c.wants(New(TypeMissileDetonated, nil, "clan_c")))
}

func TestClientWants_AllEvents(t *testing.T) {
	c := &Client{sub: Subscription{AllEvents: true}}
	assert.True(t, c.wants(New(TypeCounterIntelAlert, nil)))
}
