package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	l := NewMemoryLimiter(Config{Enabled: true, Requests: 3, Window: time.Minute})
	defer l.Stop()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// Independent keys.
	assert.True(t, l.Allow("b"))
}

func TestMemoryLimiter_Refill(t *testing.T) {
	l := NewMemoryLimiter(Config{Enabled: true, Requests: 10, Window: 100 * time.Millisecond})
	defer l.Stop()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow("a"), "tokens should refill over time")
}

func TestMemoryLimiter_Disabled(t *testing.T) {
	l := NewMemoryLimiter(Config{Enabled: false, Requests: 1, Window: time.Minute})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l := NewMemoryLimiter(Config{Enabled: true, Requests: 1, Window: time.Hour})
	defer l.Stop()

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", ClientIP(r))
}
