package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
)

func TestClock_AdvancesPerCall(t *testing.T) {
	clock := NewClock()

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Peek())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClockAt(Epoch, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock()
	const numGoroutines = 20
	const callsPerGoroutine = 50

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer wg.Done()
			for range callsPerGoroutine {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("")

	assert.Equal(t, "char-0001", gen.Generate())
	assert.Equal(t, "char-0002", gen.Generate())
}

func TestFixedIDs_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedIDs("a", "a")

	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, 1, gen.Remaining())
	assert.Equal(t, "a", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestDraftIsValid(t *testing.T) {
	rs := rules.Default()
	require.NoError(t, character.Validate(rs, Fighter("Bruna")))
	require.NoError(t, character.Validate(rs, Draft("Ilse", "Wizard")))
}
