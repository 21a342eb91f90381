package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base

	rl := NewKeyedRateLimiter(5, time.Minute, 5)
	rl.now = func() time.Time { return now }

	for i := range 5 {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "sixth request within the minute should be rejected")

	// Another client keeps its own budget.
	assert.True(t, rl.Allow("10.0.0.2"))

	// One token refills every 12s.
	now = base.Add(12 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestKeyedRateLimiter_Prune(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base

	rl := NewKeyedRateLimiter(5, time.Minute, 5)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = base.Add(5 * time.Minute)
	rl.Allow("b")

	assert.Equal(t, 2, rl.Len())
	assert.Equal(t, 1, rl.Prune(2*time.Minute))
	assert.Equal(t, 1, rl.Len())
}

func TestKeyedRateLimiter_UpdateLimits(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rl := NewKeyedRateLimiter(1, time.Minute, 1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	rl.UpdateLimits(60, time.Second, 2)
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
}
