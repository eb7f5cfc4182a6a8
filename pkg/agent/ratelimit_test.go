package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsBurstUpToCapacity(t *testing.T) {
	rl := NewRateLimiter(100) // capacity 10

	allowed := 0
	for i := 0; i < 15; i++ {
		if rl.Allow() {
			allowed++
		}
	}

	assert.Equal(t, 10, allowed, "burst should be capped at a tenth of the hourly rate")
}

func TestRateLimiter_MinimumCapacityIsOne(t *testing.T) {
	rl := NewRateLimiter(5) // 5/10 < 1, clamps to 1

	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiter_NonPositiveRateFallsBack(t *testing.T) {
	rl := NewRateLimiter(0)

	assert.Greater(t, rl.Tokens(), 0.0)
	assert.True(t, rl.Allow())
}

func TestRateLimiter_WaitReturnsImmediatelyWithTokens(t *testing.T) {
	rl := NewRateLimiter(100)

	start := time.Now()
	err := rl.Wait(context.Background())

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimiter_WaitHonoursCancellation(t *testing.T) {
	rl := NewRateLimiter(1) // capacity 1, refill ~once per hour
	require.True(t, rl.Allow(), "drain the only token")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, rl.Waits())
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(100)
	for rl.Allow() {
	}
	require.Less(t, rl.Tokens(), 1.0)

	rl.Reset()

	assert.GreaterOrEqual(t, rl.Tokens(), 9.0)
}
