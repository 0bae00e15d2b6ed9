// Package roll provides random outcome rolling for combat and espionage.
//
// Production rollers are seeded from crypto/rand; tests construct seeded
// rollers so probabilistic outcomes are reproducible.
package roll

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

// Roller draws uniform random values. Safe for concurrent use.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a roller seeded from crypto/rand.
func New() *Roller {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return NewSeeded(int64(binary.LittleEndian.Uint64(b[:])))
}

// NewSeeded creates a deterministic roller for tests.
func NewSeeded(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform value in [0, 1).
func (r *Roller) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Chance returns true with probability p. p <= 0 never succeeds,
// p >= 1 always succeeds.
func (r *Roller) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float64() < p
}

// Between returns a uniform value in [min, max).
func (r *Roller) Between(min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// Intn returns a uniform int in [0, n). n must be positive.
func (r *Roller) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Perm returns a random permutation of [0, n).
func (r *Roller) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}
