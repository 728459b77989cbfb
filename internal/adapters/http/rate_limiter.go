package http

import (
	"sync"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
)

const rateLimiterPruneThreshold = 4096

// RateLimiter is a sliding-window limiter keyed by client address.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	clock    core.Clock
}

func NewRateLimiter(limit int, interval time.Duration, clock core.Clock) *RateLimiter {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		clock:    clock,
	}
}

// Allow records an attempt for key and reports whether it is within limit.
// A limit of zero or less disables limiting.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)

	if len(rl.history) > rateLimiterPruneThreshold {
		rl.pruneLocked(windowStart)
	}

	attempts := rl.history[key]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)
	return true
}

func (rl *RateLimiter) pruneLocked(windowStart time.Time) {
	for key, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, key)
		}
	}
}
