package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendRateLimiter(t *testing.T) {
	rl := NewSendRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("s1"), "attempt %d within limit", i)
	}
	assert.False(t, rl.Allow("s1"), "fourth attempt inside the window blocked")
	assert.True(t, rl.Allow("s2"), "other connections unaffected")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("s1"), "window slid, attempts allowed again")
}

func TestSendRateLimiterDisabled(t *testing.T) {
	rl := NewSendRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("s1"))
	}
}

func TestSendRateLimiterForget(t *testing.T) {
	rl := NewSendRateLimiter(1, time.Hour)
	assert.True(t, rl.Allow("s1"))
	assert.False(t, rl.Allow("s1"))
	rl.Forget("s1")
	assert.True(t, rl.Allow("s1"))
}
