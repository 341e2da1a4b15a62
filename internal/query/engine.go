// Package query compiles declarative search requests into bounded-cost store
// predicates and executes them. Purely a read path: no retries, no side
// effects, idempotent under an unchanged corpus.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/cliniscope/cliniscope/internal/query/config"
	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// KindResolver reports the inferred type of a field, typically backed by the
// schema discovery catalog. KindUnknown means no inference is available; the
// engine then falls back to the literal's own type.
type KindResolver interface {
	KindFor(field string) model.FieldKind
}

// Engine validates, compiles and executes queries against the store.
type Engine struct {
	store  storage.DocumentStore
	kinds  KindResolver
	cfg    config.Config
	logger *slog.Logger
}

// New creates a query engine. kinds may be nil; validation then relies on
// literal types alone.
func New(store storage.DocumentStore, kinds KindResolver, cfg config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, kinds: kinds, cfg: cfg, logger: logger}
}

// Execute runs one query: compiles the AST, fetches a page plus the
// filter-wide total, and computes any requested facets. A validation failure
// rejects the whole request; nothing is partially applied.
func (e *Engine) Execute(ctx context.Context, q model.Query) (*model.Result, error) {
	start := time.Now()

	plan, err := e.Compile(q)
	if err != nil {
		return nil, err
	}

	total, err := e.store.Count(ctx, plan)
	if err != nil {
		return nil, err
	}

	docs := []*model.Document{}
	if plan.Limit > 0 && int64(plan.Offset) < total {
		docs, err = e.store.Search(ctx, plan)
		if err != nil {
			return nil, err
		}
	}

	result := &model.Result{
		Documents: docs,
		Total:     total,
	}

	if len(q.Facets) > 0 {
		result.Facets = make(map[string]*model.FacetResult, len(q.Facets))
		for _, field := range q.Facets {
			facet, err := e.facet(ctx, q, plan, field)
			if err != nil {
				return nil, err
			}
			result.Facets[field] = facet
		}
	}

	result.TookMs = time.Since(start).Milliseconds()
	return result, nil
}

// facet computes one facet: the same predicate minus the field's own
// conditions, so the tally answers "what would change if only this filter
// moved".
func (e *Engine) facet(ctx context.Context, q model.Query, plan storage.Plan, field string) (*model.FacetResult, error) {
	facetPlan := plan
	facetPlan.Filter = plan.Filter.Prune(func(leaf *model.FilterNode) bool {
		return leaf.Field == field
	})

	unwind := e.kindFor(field) == model.KindList
	return e.store.Facet(ctx, facetPlan, field, e.cfg.MaxFacetBuckets, unwind)
}

func (e *Engine) kindFor(field string) model.FieldKind {
	if kind, ok := model.HeaderFields[field]; ok {
		return kind
	}
	if e.kinds != nil {
		return e.kinds.KindFor(field)
	}
	return model.KindUnknown
}
