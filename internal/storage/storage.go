// Package storage defines the document store contract. The corpus is
// read-mostly from the query path; writes belong to ingestion.
package storage

import (
	"context"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// Plan is a validated, coerced search request as produced by the query
// engine. Literals inside Filter have already passed type validation; date
// literals are coerced (header dates to unix millis, bag dates to time.Time).
type Plan struct {
	// FreeText enables ranked relevance matching across title and body.
	FreeText string

	// Categories restricts the search to source categories. Empty means all.
	Categories []string

	// Filter is the validated condition tree. Nil matches everything.
	Filter *model.FilterNode

	// Sort is the resolved ordering. An empty Field with FreeText set means
	// relevance descending. Ties are always broken by document id ascending.
	Sort model.Sort

	Offset int
	Limit  int

	// ReturnFields projects the attribute bag. Header fields are always
	// returned. Empty means the full document.
	ReturnFields []string
}

// DocumentStore is the durable holder of documents.
type DocumentStore interface {
	// Upsert atomically replaces header and attribute bag, keyed by
	// (source, external id). CreatedAt is preserved on replacement.
	Upsert(ctx context.Context, doc *model.Document) error

	// Get retrieves one document by its source-scoped identity.
	Get(ctx context.Context, source, externalID string) (*model.Document, error)

	// Search executes the plan and returns one page of documents.
	Search(ctx context.Context, plan Plan) ([]*model.Document, error)

	// Count returns the number of documents matching the plan's predicate,
	// independent of offset and limit.
	Count(ctx context.Context, plan Plan) (int64, error)

	// Facet aggregates count-per-distinct-value for field under the plan's
	// predicate, capped at maxBuckets with overflow collapsed into Other.
	// unwind treats the field as list-valued and counts elements.
	Facet(ctx context.Context, plan Plan, field string, maxBuckets int, unwind bool) (*model.FacetResult, error)

	// Sample returns up to n randomly sampled documents for a source. Used
	// by schema discovery to keep inference cost sublinear in corpus size.
	Sample(ctx context.Context, source string, n int) ([]*model.Document, error)

	// Sources lists the distinct source identifiers present in the corpus.
	Sources(ctx context.Context) ([]string, error)

	// EnsureIndexes creates the identity, category and full-text indexes.
	EnsureIndexes(ctx context.Context) error

	Close(ctx context.Context) error
}
