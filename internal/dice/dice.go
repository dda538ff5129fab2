// Package dice rolls the d20 used by ability and skill checks.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrInvalidSides indicates a die with fewer than one side.
var ErrInvalidSides = errors.New("die must have at least one side")

// Roller rolls dice from a seeded source.
//
// Given the same seed, a Roller produces the same sequence of results.
//
// Thread-safety: Roller is safe for concurrent use via internal mutex.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a roller seeded with seed.
func New(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// NewRandom creates a roller seeded from crypto/rand.
func NewRandom() (*Roller, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return New(seed), nil
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Roll returns a result in [1, sides].
func (r *Roller) Roll(sides int) (int, error) {
	if sides < 1 {
		return 0, ErrInvalidSides
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(sides) + 1, nil
}

// D20 rolls a twenty-sided die.
func (r *Roller) D20() int {
	n, _ := r.Roll(20)
	return n
}
