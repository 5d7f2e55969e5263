package throttling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedThrottler_RejectsBeyondBurst(t *testing.T) {
	throttler := NewKeyedThrottler(1, 3, time.Minute)
	defer throttler.Stop()

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	throttler.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		assert.True(t, throttler.Allow("session-a"))
	}
	assert.False(t, throttler.Allow("session-a"))

	// Otra clave tiene su propio cubo
	assert.True(t, throttler.Allow("session-b"))

	// Un segundo después se repone un token
	fixed = fixed.Add(time.Second)
	assert.True(t, throttler.Allow("session-a"))
	assert.False(t, throttler.Allow("session-a"))
}

func TestKeyedThrottler_DisabledWhenRateNotPositive(t *testing.T) {
	throttler := NewKeyedThrottler(0, 0, time.Minute)
	defer throttler.Stop()

	for i := 0; i < 1000; i++ {
		assert.True(t, throttler.Allow("s"))
	}
}

func TestKeyedThrottler_ExpiresIdleKeys(t *testing.T) {
	throttler := NewKeyedThrottler(5, 5, time.Minute)
	defer throttler.Stop()

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	throttler.now = func() time.Time { return current }

	throttler.Allow("old")
	current = current.Add(2 * time.Minute)
	throttler.Allow("fresh")

	throttler.removeExpired()
	assert.Equal(t, 1, throttler.Len())

	throttler.Forget("fresh")
	assert.Equal(t, 0, throttler.Len())
	throttler.Stop()
}
