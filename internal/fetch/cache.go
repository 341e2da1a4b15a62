// Package fetch is the adaptive result cache in front of the query engine.
// Per query shape it probes the total and either fetches the whole small
// result set once, serving later pages and sort variants from memory, or
// passes each page straight through. Identical concurrent requests coalesce
// onto one engine execution.
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cliniscope/cliniscope/internal/fetch/config"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// Executor runs a compiled-and-validated search. Implemented by the query
// engine.
type Executor interface {
	Execute(ctx context.Context, q model.Query) (*model.Result, error)
}

// Response is one page of results plus where it came from.
type Response struct {
	Documents []*model.Document             `json:"documents"`
	Total     int64                         `json:"total"`
	Facets    map[string]*model.FacetResult `json:"facets,omitempty"`
	TookMs    int64                         `json:"tookMs"`
	FromCache bool                          `json:"fromCache"`
}

// entry is a resident full result set for one (filter, sort) key. Immutable
// after insertion; pages are served as subslices.
type entry struct {
	base    uint64
	docs    []*model.Document
	total   int64
	facets  map[string]*model.FacetResult
	builtAt time.Time
}

// flight is an in-flight fetch other callers of the same request wait on.
type flight struct {
	done chan struct{}
	resp *Response
	err  error
}

// Cache decides fetch strategy per query shape and caches what is cheap to
// keep. Process local. The mutex guards only the tables, never an engine
// call.
type Cache struct {
	exec   Executor
	cfg    config.Config
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[uint64]*entry // full small result sets, by sort key
	pages    map[uint64]*entry // prefetched single pages, by request key
	inflight map[uint64]*flight

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates the cache and starts its eviction sweeper. Call Close to stop
// it.
func New(exec Executor, cfg config.Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		exec:     exec,
		cfg:      cfg,
		logger:   logger,
		entries:  make(map[uint64]*entry),
		pages:    make(map[uint64]*entry),
		inflight: make(map[uint64]*flight),
		stop:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Close stops the eviction sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Fetch serves one page for the query, consulting the cache first. Requests
// without an explicit limit bypass the cache so the engine's own page
// defaulting stays authoritative.
func (c *Cache) Fetch(ctx context.Context, q model.Query) (*Response, error) {
	start := time.Now()

	if q.Pagination.Limit <= 0 {
		res, err := c.exec.Execute(ctx, q)
		if err != nil {
			return nil, err
		}
		return &Response{
			Documents: res.Documents,
			Total:     res.Total,
			Facets:    res.Facets,
			TookMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	base := baseKey(q)
	skey := sortKey(base, q.Sort)
	rkey := requestKey(skey, q.Pagination)

	c.mu.Lock()
	if resp := c.lookupLocked(q, base, skey, rkey); resp != nil {
		c.mu.Unlock()
		resp.TookMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	if fl, ok := c.inflight[rkey]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if fl.err != nil {
			return nil, fl.err
		}
		shared := *fl.resp
		shared.TookMs = time.Since(start).Milliseconds()
		return &shared, nil
	}

	fl := &flight{done: make(chan struct{})}
	c.inflight[rkey] = fl
	c.mu.Unlock()

	resp, ent, err := c.load(ctx, q, base)

	c.mu.Lock()
	delete(c.inflight, rkey)
	if ent != nil {
		c.entries[skey] = ent
	}
	c.mu.Unlock()

	fl.resp, fl.err = resp, err
	close(fl.done)

	if err != nil {
		return nil, err
	}
	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

// lookupLocked serves a page from resident data when possible: a fresh full
// set under this sort key, a fresh full set under a sibling sort key that
// can be reordered in memory, or a prefetched page. Caller holds the mutex.
func (c *Cache) lookupLocked(q model.Query, base, skey, rkey uint64) *Response {
	now := time.Now()

	if ent, ok := c.entries[skey]; ok && now.Sub(ent.builtAt) < c.cfg.TTL {
		return c.sliceResponse(ent, q.Pagination)
	}

	for _, ent := range c.entries {
		if ent.base != base || now.Sub(ent.builtAt) >= c.cfg.TTL {
			continue
		}
		resorted := &entry{
			base:    base,
			docs:    reorder(ent.docs, q.Sort),
			total:   ent.total,
			facets:  ent.facets,
			builtAt: ent.builtAt,
		}
		c.entries[skey] = resorted
		return c.sliceResponse(resorted, q.Pagination)
	}

	if page, ok := c.pages[rkey]; ok && now.Sub(page.builtAt) < c.cfg.TTL {
		return &Response{
			Documents: page.docs,
			Total:     page.total,
			Facets:    page.facets,
			FromCache: true,
		}
	}
	return nil
}

// load is the miss path: probe the total, then fetch either the whole small
// result set or just the requested page. Runs without the mutex.
func (c *Cache) load(ctx context.Context, q model.Query, base uint64) (*Response, *entry, error) {
	probe := q
	probe.Pagination = model.Page{Offset: 0, Limit: 1}
	probe.Facets = nil

	probed, err := c.exec.Execute(ctx, probe)
	if err != nil {
		return nil, nil, err
	}

	if probed.Total <= int64(c.cfg.SmallResultThreshold) {
		full := q
		full.Pagination = model.Page{Offset: 0, Limit: int(probed.Total)}
		if full.Pagination.Limit == 0 {
			full.Pagination.Limit = 1
		}
		res, err := c.exec.Execute(ctx, full)
		if err != nil {
			return nil, nil, err
		}
		ent := &entry{
			base:    base,
			docs:    res.Documents,
			total:   res.Total,
			facets:  res.Facets,
			builtAt: time.Now(),
		}
		resp := c.sliceResponse(ent, q.Pagination)
		resp.FromCache = false
		return resp, ent, nil
	}

	// Large result set: pure passthrough, nothing retained.
	res, err := c.exec.Execute(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	resp := &Response{
		Documents: res.Documents,
		Total:     res.Total,
		Facets:    res.Facets,
	}

	if !c.cfg.PrefetchDisabled && len(res.Documents) == q.Pagination.Limit {
		go c.prefetchNext(q, base)
	}
	return resp, nil, nil
}

// prefetchNext eagerly fetches the page after the one just served so the
// caller's next request is already resident. Failures are dropped.
func (c *Cache) prefetchNext(q model.Query, base uint64) {
	next := q
	next.Pagination.Offset += q.Pagination.Limit

	skey := sortKey(base, next.Sort)
	rkey := requestKey(skey, next.Pagination)

	c.mu.Lock()
	_, cached := c.pages[rkey]
	_, busy := c.inflight[rkey]
	c.mu.Unlock()
	if cached || busy {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PrefetchTimeout)
	defer cancel()

	res, err := c.exec.Execute(ctx, next)
	if err != nil {
		c.logger.Debug("next-page prefetch failed", "error", err)
		return
	}

	c.mu.Lock()
	c.pages[rkey] = &entry{
		base:    base,
		docs:    res.Documents,
		total:   res.Total,
		facets:  res.Facets,
		builtAt: time.Now(),
	}
	c.mu.Unlock()
}

// sliceResponse cuts one page out of a resident full set. Slicing is
// lossless: concatenating all pages reproduces the full set in order.
func (c *Cache) sliceResponse(ent *entry, page model.Page) *Response {
	docs := []*model.Document{}
	if page.Offset < len(ent.docs) {
		end := page.Offset + page.Limit
		if end > len(ent.docs) {
			end = len(ent.docs)
		}
		docs = ent.docs[page.Offset:end]
	}
	return &Response{
		Documents: docs,
		Total:     ent.total,
		Facets:    ent.facets,
		FromCache: true,
	}
}

// Invalidate drops all cached data derived from the query's filter shape,
// across its sort variants and prefetched pages.
func (c *Cache) Invalidate(q model.Query) {
	base := baseKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ent := range c.entries {
		if ent.base == base {
			delete(c.entries, k)
		}
	}
	for k, page := range c.pages {
		if page.base == base {
			delete(c.pages, k)
		}
	}
}

// InvalidateAll empties the cache. Called when the corpus changes under us,
// typically on an ingest event.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*entry)
	c.pages = make(map[uint64]*entry)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, ent := range c.entries {
				if now.Sub(ent.builtAt) >= c.cfg.TTL {
					delete(c.entries, k)
				}
			}
			for k, page := range c.pages {
				if now.Sub(page.builtAt) >= c.cfg.TTL {
					delete(c.pages, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
