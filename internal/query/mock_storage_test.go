package query

import (
	"context"

	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// mockStore records the plans it receives and serves canned results.
type mockStore struct {
	docs  []*model.Document
	total int64

	searchErr error
	countErr  error
	facetErr  error

	searchCalls []storage.Plan
	countCalls  []storage.Plan
	facetCalls  []facetCall

	facetResult *model.FacetResult
}

type facetCall struct {
	plan       storage.Plan
	field      string
	maxBuckets int
	unwind     bool
}

func (m *mockStore) Upsert(ctx context.Context, doc *model.Document) error { return nil }

func (m *mockStore) Get(ctx context.Context, source, externalID string) (*model.Document, error) {
	return nil, model.ErrNotFound
}

func (m *mockStore) Search(ctx context.Context, plan storage.Plan) ([]*model.Document, error) {
	m.searchCalls = append(m.searchCalls, plan)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.docs, nil
}

func (m *mockStore) Count(ctx context.Context, plan storage.Plan) (int64, error) {
	m.countCalls = append(m.countCalls, plan)
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.total, nil
}

func (m *mockStore) Facet(ctx context.Context, plan storage.Plan, field string, maxBuckets int, unwind bool) (*model.FacetResult, error) {
	m.facetCalls = append(m.facetCalls, facetCall{plan: plan, field: field, maxBuckets: maxBuckets, unwind: unwind})
	if m.facetErr != nil {
		return nil, m.facetErr
	}
	if m.facetResult != nil {
		return m.facetResult, nil
	}
	return &model.FacetResult{Field: field}, nil
}

func (m *mockStore) Sample(ctx context.Context, source string, n int) ([]*model.Document, error) {
	return nil, nil
}

func (m *mockStore) Sources(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mockStore) EnsureIndexes(ctx context.Context) error { return nil }

func (m *mockStore) Close(ctx context.Context) error { return nil }

// mapResolver resolves kinds from a fixed table.
type mapResolver map[string]model.FieldKind

func (r mapResolver) KindFor(field string) model.FieldKind {
	if k, ok := r[field]; ok {
		return k
	}
	return model.KindUnknown
}
