package fetch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// ErrSuperseded reports that a newer query was issued on the session before
// this one resolved. The stale result is discarded, never delivered.
var ErrSuperseded = errors.New("superseded by a newer query")

// Session serializes one caller's queries so that only the latest one may
// deliver a result. A search UI firing a request per keystroke wants the
// last request to win regardless of response arrival order.
type Session struct {
	cache *Cache
	gen   atomic.Uint64
}

// NewSession creates a session over the shared cache.
func NewSession(cache *Cache) *Session {
	return &Session{cache: cache}
}

// Fetch runs the query through the cache. If a newer Fetch was issued on
// this session while waiting, the response is dropped and ErrSuperseded is
// returned instead. The underlying fetch may still complete and populate
// the cache for other callers.
func (s *Session) Fetch(ctx context.Context, q model.Query) (*Response, error) {
	gen := s.gen.Add(1)

	resp, err := s.cache.Fetch(ctx, q)
	if s.gen.Load() != gen {
		return nil, ErrSuperseded
	}
	return resp, err
}
