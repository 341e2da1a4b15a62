package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliniscope/cliniscope/internal/fetch/config"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// mockExecutor serves a fixed corpus, slicing per the request's pagination,
// and records every execution.
type mockExecutor struct {
	mu    sync.Mutex
	docs  []*model.Document
	err   error
	calls []model.Query

	// gate, when set, blocks executions until released.
	gate chan struct{}
}

func (m *mockExecutor) Execute(ctx context.Context, q model.Query) (*model.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, q)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}

	docs := []*model.Document{}
	if q.Pagination.Offset < len(m.docs) {
		end := q.Pagination.Offset + q.Pagination.Limit
		if end > len(m.docs) {
			end = len(m.docs)
		}
		docs = m.docs[q.Pagination.Offset:end]
	}
	return &model.Result{Documents: docs, Total: int64(len(m.docs))}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func corpus(n int) []*model.Document {
	docs := make([]*model.Document, n)
	for i := 0; i < n; i++ {
		docs[i] = &model.Document{
			ID:        fmt.Sprintf("ct:%04d", i),
			Source:    "clinicaltrials",
			Category:  "trial",
			Title:     fmt.Sprintf("Trial %d", i),
			UpdatedAt: int64(1000 - i),
		}
	}
	return docs
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.SmallResultThreshold = 10
	cfg.PrefetchDisabled = true
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestCache(exec Executor, cfg config.Config) *Cache {
	return New(exec, cfg, testLogger())
}

func trialQuery(offset, limit int) model.Query {
	return model.Query{
		Conditions: &model.FilterNode{Field: "phase", Operator: model.OpEq, Value: "Phase 2"},
		Pagination: model.Page{Offset: offset, Limit: limit},
	}
}

func TestFetch_SmallResultSetCachedAndSliced(t *testing.T) {
	exec := &mockExecutor{docs: corpus(7)}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	// Miss: probe plus full fetch.
	resp, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, int64(7), resp.Total)
	require.Len(t, resp.Documents, 3)
	assert.Equal(t, 2, exec.callCount())

	// Later pages come from memory, no further executions.
	var all []*model.Document
	all = append(all, resp.Documents...)
	for offset := 3; offset < 7; offset += 3 {
		resp, err := c.Fetch(context.Background(), trialQuery(offset, 3))
		require.NoError(t, err)
		assert.True(t, resp.FromCache)
		all = append(all, resp.Documents...)
	}
	assert.Equal(t, 2, exec.callCount())

	// Slicing is lossless and order preserving.
	require.Len(t, all, 7)
	for i, doc := range all {
		assert.Equal(t, exec.docs[i].ID, doc.ID)
	}
}

func TestFetch_PageBeyondTotalIsEmpty(t *testing.T) {
	exec := &mockExecutor{docs: corpus(4)}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 4))
	require.NoError(t, err)

	resp, err := c.Fetch(context.Background(), trialQuery(10, 4))
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Empty(t, resp.Documents)
	assert.Equal(t, int64(4), resp.Total)
}

func TestFetch_LargeResultSetIsPassthrough(t *testing.T) {
	exec := &mockExecutor{docs: corpus(50)}
	cfg := testConfig() // threshold 10
	c := newTestCache(exec, cfg)
	defer c.Close()

	resp, err := c.Fetch(context.Background(), trialQuery(0, 5))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	require.Len(t, resp.Documents, 5)
	// Probe plus page fetch.
	assert.Equal(t, 2, exec.callCount())

	// Nothing retained: the same page fetches again.
	resp, err = c.Fetch(context.Background(), trialQuery(0, 5))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 4, exec.callCount())
}

func TestFetch_DistinctFiltersAreDistinctKeys(t *testing.T) {
	exec := &mockExecutor{docs: corpus(5)}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 5))
	require.NoError(t, err)
	calls := exec.callCount()

	other := trialQuery(0, 5)
	other.Conditions = &model.FilterNode{Field: "phase", Operator: model.OpEq, Value: "Phase 3"}
	resp, err := c.Fetch(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Greater(t, exec.callCount(), calls)
}

func TestFetch_ResidentSetReorderedForNewSort(t *testing.T) {
	docs := []*model.Document{
		{ID: "a", Title: "beta", UpdatedAt: 3},
		{ID: "b", Title: "alpha", UpdatedAt: 2},
		{ID: "c", Title: "gamma", UpdatedAt: 1},
	}
	exec := &mockExecutor{docs: docs}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)
	calls := exec.callCount()

	q := trialQuery(0, 3)
	q.Sort = &model.Sort{Field: "title", Direction: model.DirAsc}
	resp, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, calls, exec.callCount(), "reorder must not hit the engine")

	var ids []string
	for _, d := range resp.Documents {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestFetch_CoalescesConcurrentIdenticalRequests(t *testing.T) {
	exec := &mockExecutor{docs: corpus(5), gate: make(chan struct{})}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	const n = 8
	var wg sync.WaitGroup
	responses := make([]*Response, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = c.Fetch(context.Background(), trialQuery(0, 5))
		}(i)
	}

	// Let every goroutine reach the cache before releasing the engine.
	require.Eventually(t, func() bool { return exec.callCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(exec.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(5), responses[i].Total)
		require.Len(t, responses[i].Documents, 5)
	}
	// One probe and one full fetch total, regardless of caller count.
	assert.Equal(t, 2, exec.callCount())
}

func TestFetch_WaiterHonorsCancellation(t *testing.T) {
	exec := &mockExecutor{docs: corpus(5), gate: make(chan struct{})}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	go func() {
		_, _ = c.Fetch(context.Background(), trialQuery(0, 5))
	}()
	require.Eventually(t, func() bool { return exec.callCount() >= 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, trialQuery(0, 5))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe cancellation")
	}
	close(exec.gate)
}

func TestFetch_FailedFetchPopulatesNothing(t *testing.T) {
	exec := &mockExecutor{docs: corpus(5), err: model.ErrStoreTimeout}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 5))
	require.Error(t, err)
	assert.True(t, model.IsRetryable(err))

	// Recovery: the next request is a clean miss, not a poisoned entry.
	exec.err = nil
	resp, err := c.Fetch(context.Background(), trialQuery(0, 5))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Equal(t, int64(5), resp.Total)
}

func TestFetch_ExpiredEntryRefetches(t *testing.T) {
	exec := &mockExecutor{docs: corpus(3)}
	cfg := testConfig()
	cfg.TTL = time.Millisecond
	c := newTestCache(exec, cfg)
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)
	calls := exec.callCount()

	time.Sleep(5 * time.Millisecond)

	resp, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	assert.Greater(t, exec.callCount(), calls)
}

func TestFetch_Invalidate(t *testing.T) {
	exec := &mockExecutor{docs: corpus(3)}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	q := trialQuery(0, 3)
	_, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)

	c.Invalidate(q)

	resp, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
}

func TestFetch_InvalidateAll(t *testing.T) {
	exec := &mockExecutor{docs: corpus(3)}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)

	c.InvalidateAll()

	resp, err := c.Fetch(context.Background(), trialQuery(0, 3))
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
}

func TestFetch_PrefetchServesNextPage(t *testing.T) {
	exec := &mockExecutor{docs: corpus(50)}
	cfg := testConfig()
	cfg.PrefetchDisabled = false
	c := newTestCache(exec, cfg)
	defer c.Close()

	_, err := c.Fetch(context.Background(), trialQuery(0, 5))
	require.NoError(t, err)

	// The next page lands in the background.
	require.Eventually(t, func() bool { return exec.callCount() >= 3 }, time.Second, time.Millisecond)

	calls := exec.callCount()
	resp, err := c.Fetch(context.Background(), trialQuery(5, 5))
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "ct:0005", resp.Documents[0].ID)
	// A prefetch for the page after may fire, but not a foreground fetch.
	assert.GreaterOrEqual(t, calls, exec.callCount()-1)
}

func TestFetch_ZeroTotal(t *testing.T) {
	exec := &mockExecutor{docs: nil}
	c := newTestCache(exec, testConfig())
	defer c.Close()

	resp, err := c.Fetch(context.Background(), trialQuery(0, 10))
	require.NoError(t, err)
	assert.Zero(t, resp.Total)
	assert.Empty(t, resp.Documents)

	// The empty result is itself cached.
	resp, err = c.Fetch(context.Background(), trialQuery(0, 10))
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
}

func TestSession_LastRequestWins(t *testing.T) {
	exec := &mockExecutor{docs: corpus(3), gate: make(chan struct{})}
	c := newTestCache(exec, testConfig())
	defer c.Close()
	s := NewSession(c)

	first := make(chan error, 1)
	go func() {
		_, err := s.Fetch(context.Background(), trialQuery(0, 3))
		first <- err
	}()
	require.Eventually(t, func() bool { return exec.callCount() >= 1 }, time.Second, time.Millisecond)

	// A second query supersedes the first while it is still in flight.
	second := make(chan error, 1)
	go func() {
		q := trialQuery(0, 3)
		q.FreeText = "metformin"
		_, err := s.Fetch(context.Background(), q)
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(exec.gate)

	assert.ErrorIs(t, <-first, ErrSuperseded)
	assert.NoError(t, <-second)
}
