package agent

import (
	"context"
	"sync"
	"time"
)

// RateLimiter throttles how often SessionOrchestrator may invoke the
// Agent Driver, so an unattended coding loop can't exhaust a provider's
// request budget across a long run of WorkItems. Token bucket: capacity
// is a tenth of the hourly rate (minimum one) so short bursts are fine
// but the hourly average holds.
type RateLimiter struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	waits      int
}

// minWait bounds how tightly Wait polls the bucket.
const minWait = time.Second

// NewRateLimiter creates a limiter allowing perHour driver invocations
// per hour. Non-positive rates fall back to 100/hour.
func NewRateLimiter(perHour int) *RateLimiter {
	if perHour <= 0 {
		perHour = 100
	}
	capacity := float64(perHour) / 10
	if capacity < 1 {
		capacity = 1
	}
	return &RateLimiter{
		capacity:   capacity,
		refillRate: float64(perHour) / 3600.0,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// Allow reports whether a driver run may proceed right now, consuming a
// token if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a driver run may proceed or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - rl.tokens) / rl.refillRate * float64(time.Second))
		if wait < minWait {
			wait = minWait
		}
		rl.waits++
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Waits returns how many times Wait had to block.
func (rl *RateLimiter) Waits() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.waits
}

// Reset refills the bucket to capacity.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = rl.capacity
	rl.lastRefill = time.Now()
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now
}
