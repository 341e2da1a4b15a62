// Package ratelimit protects the search API from request floods. Token
// bucket per client key, O(1) space per key.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether a request from a key may proceed.
type Limiter interface {
	Allow(key string) bool
	Reset(key string)
}

// Config holds the rate limiting settings.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Requests is the bucket capacity per window.
	Requests int `yaml:"requests"`

	// Window is the refill period.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns the default rate limiting settings.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Requests: 120,
		Window:   time.Minute,
	}
}

// MemoryLimiter is an in-process token bucket limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config

	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryLimiter creates a limiter and starts its stale-bucket cleanup.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		ticker:  time.NewTicker(cfg.Window * 2),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow consumes one token for the key, refilling at Requests/Window.
func (l *MemoryLimiter) Allow(key string) bool {
	if !l.cfg.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	capacity := float64(l.cfg.Requests)
	fillRate := capacity / l.cfg.Window.Seconds()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: capacity - 1, lastUpdate: now}
		return true
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(capacity, b.tokens+elapsed*fillRate)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Reset clears the bucket for a key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Stop ends the cleanup goroutine.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) cleanup() {
	for {
		select {
		case <-l.ticker.C:
			l.dropStale()
		case <-l.stop:
			l.ticker.Stop()
			return
		}
	}
}

func (l *MemoryLimiter) dropStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	threshold := l.cfg.Window * 2
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > threshold {
			delete(l.buckets, key)
		}
	}
}

// ClientIP extracts the rate limit key from a request, preferring proxy
// headers over the raw remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
