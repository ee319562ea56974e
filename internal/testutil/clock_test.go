package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	assert.Equal(t, int64(0), clock.Readings())
	assert.True(t, DefaultEpoch.Equal(clock.Now()))
}

func TestDeterministicClock_AdvancesBySteps(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewDeterministicClock(start).WithStep(time.Minute)

	assert.True(t, start.Equal(clock.Now()))
	assert.True(t, start.Add(time.Minute).Equal(clock.Now()))
	assert.True(t, start.Add(2*time.Minute).Equal(clock.Now()))
	assert.Equal(t, int64(3), clock.Readings())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Readings())
	assert.True(t, DefaultEpoch.Equal(clock.Now()))
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(time.Time{})
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := clock.Now()
				mu.Lock()
				require.False(t, seen[now], "duplicate reading %v", now)
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestDeterministicClock_Deterministic(t *testing.T) {
	clock1 := NewDeterministicClock(time.Time{})
	clock2 := NewDeterministicClock(time.Time{})

	for i := 0; i < 100; i++ {
		assert.True(t, clock1.Now().Equal(clock2.Now()))
	}
}
