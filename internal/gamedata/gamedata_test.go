package gamedata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestComponentCost_TierScaling(t *testing.T) {
	tables := Default()

	// Tier 1 pays the base cost.
	c1, err := tables.ComponentCost("guidance", 1)
	require.NoError(t, err)
	assert.Equal(t, tables.Components["guidance"].BaseCost, c1)

	// Tier 3 pays base × multiplier².
	c3, err := tables.ComponentCost("guidance", 3)
	require.NoError(t, err)
	mult := tables.Components["guidance"].TierMultiplier
	want := tables.Components["guidance"].BaseCost.Scale(mult * mult)
	assert.Equal(t, want, c3)
}

func TestComponentCost_UnknownComponent(t *testing.T) {
	_, err := Default().ComponentCost("flux_capacitor", 1)
	assert.Error(t, err)
}

func TestSpyCap_ClampsTiers(t *testing.T) {
	tables := Default()
	assert.Equal(t, tables.SpyCapByResearchTier[0], tables.SpyCap(-1))
	assert.Equal(t, tables.SpyCapByResearchTier[0], tables.SpyCap(0))
	last := tables.SpyCapByResearchTier[len(tables.SpyCapByResearchTier)-1]
	assert.Equal(t, last, tables.SpyCap(99))
}

func TestVoteThreshold_FallsBackToDefault(t *testing.T) {
	tables := Default()
	assert.Equal(t, 0.90, tables.VoteThreshold("maximal"))
	assert.Equal(t, tables.VoteThresholds["default"], tables.VoteThreshold("unheard-of"))
}

func TestLoad_OverridesFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedata.json")
	override := `{"spyCapByResearchTier": [1, 2]}`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o600))

	tables, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tables.SpyCapByResearchTier)
	// Untouched tables keep their defaults.
	assert.Contains(t, tables.Warheads, "TACTICAL")
}

func TestLoad_RejectsBrokenTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamedata.json")
	override := `{"batteries": {"FLAK": {"tier": 1, "interceptChance": 2.0}}}`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestCost_Scale(t *testing.T) {
	c := Cost{Metal: 100, Energy: 50}
	assert.Equal(t, Cost{Metal: 150, Energy: 75}, c.Scale(1.5))
	assert.True(t, Cost{}.IsZero())
	assert.Equal(t, Cost{Metal: 110, Energy: 60}, c.Add(Cost{Metal: 10, Energy: 10}))
}
