package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter provides thread-safe rate limiting keyed by an arbitrary
// string (typically a client IP). Each key gets its own token bucket so one
// noisy client cannot consume another client's budget.
type KeyedRateLimiter struct {
	mu       sync.Mutex // Protects limiters and the current limit
	limiters map[string]*keyedEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter creates a KeyedRateLimiter allowing events per period with
// the given burst for every key. For example NewKeyedRateLimiter(5, time.Minute, 5)
// allows five requests per minute per key.
func NewKeyedRateLimiter(events int, per time.Duration, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*keyedEntry),
		limit:    rate.Every(per / time.Duration(max(events, 1))),
		burst:    max(burst, 1),
		now:      time.Now,
	}
}

// Allow reports whether an event for key may happen now, consuming a token if so.
func (rl *KeyedRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// UpdateLimits dynamically adjusts the per-key rate and burst. Existing
// buckets are adjusted in place.
func (rl *KeyedRateLimiter) UpdateLimits(events int, per time.Duration, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limit = rate.Every(per / time.Duration(max(events, 1)))
	rl.burst = max(burst, 1)
	now := rl.now()
	for _, e := range rl.limiters {
		e.limiter.SetLimitAt(now, rl.limit)
		e.limiter.SetBurstAt(now, rl.burst)
	}
}

// Prune drops buckets for keys that have been idle longer than idle and
// returns the number removed. An idle bucket is full again, so forgetting it
// does not loosen the limit.
func (rl *KeyedRateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for k, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *KeyedRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
