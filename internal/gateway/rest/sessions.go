package rest

import (
	"sync"
	"time"

	"github.com/cliniscope/cliniscope/internal/fetch"
)

// SessionHeader names one logical caller, typically a browser tab. Requests
// carrying the same value are serialized last-request-wins: an answer to a
// query that was superseded while in flight is dropped instead of delivered.
const SessionHeader = "X-Search-Session"

const (
	sessionIdleTTL       = 10 * time.Minute
	sessionSweepInterval = time.Minute
)

type sessionEntry struct {
	sess     *fetch.Session
	lastSeen time.Time
}

// sessionRegistry hands out one fetch.Session per caller id. Idle sessions
// are swept lazily on access.
type sessionRegistry struct {
	cache *fetch.Cache

	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	lastSweep time.Time
}

func newSessionRegistry(cache *fetch.Cache) *sessionRegistry {
	return &sessionRegistry{
		cache:     cache,
		sessions:  make(map[string]*sessionEntry),
		lastSweep: time.Now(),
	}
}

func (r *sessionRegistry) get(id string) *fetch.Session {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= sessionSweepInterval {
		for k, e := range r.sessions {
			if now.Sub(e.lastSeen) >= sessionIdleTTL {
				delete(r.sessions, k)
			}
		}
		r.lastSweep = now
	}

	e, ok := r.sessions[id]
	if !ok {
		e = &sessionEntry{sess: fetch.NewSession(r.cache)}
		r.sessions[id] = e
	}
	e.lastSeen = now
	return e.sess
}
