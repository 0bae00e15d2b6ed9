package roll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChance_Extremes(t *testing.T) {
	r := NewSeeded(1)
	assert.False(t, r.Chance(0))
	assert.False(t, r.Chance(-0.5))
	assert.True(t, r.Chance(1))
	assert.True(t, r.Chance(1.5))
}

func TestBetween_Bounds(t *testing.T) {
	r := NewSeeded(42)
	for i := 0; i < 1000; i++ {
		v := r.Between(0.95, 1.05)
		assert.GreaterOrEqual(t, v, 0.95)
		assert.Less(t, v, 1.05)
	}
}

func TestSeeded_Deterministic(t *testing.T) {
	a := NewSeeded(7)
	b := NewSeeded(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestPerm_IsPermutation(t *testing.T) {
	r := NewSeeded(3)
	p := r.Perm(10)
	seen := make(map[int]bool)
	for _, v := range p {
		seen[v] = true
	}
	assert.Len(t, seen, 10)
}
