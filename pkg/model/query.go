package model

import "fmt"

// Sort directions.
const (
	DirAsc  = "asc"
	DirDesc = "desc"
)

// SortRelevance is the pseudo-field selecting free-text relevance order.
const SortRelevance = "_relevance"

// Sort specifies result ordering.
type Sort struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Page is the pagination window. Limit is clamped by the engine.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Query is the declarative search request. Evaluating it is side-effect free;
// two evaluations against an unchanged corpus yield identical results, with
// relevance ties broken by document id ascending.
type Query struct {
	FreeText         string      `json:"freeText,omitempty"`
	SourceCategories []string    `json:"sourceCategories,omitempty"`
	Conditions       *FilterNode `json:"conditions,omitempty"`
	Sort             *Sort       `json:"sort,omitempty"`
	Pagination       Page        `json:"pagination"`
	Facets           []string    `json:"facets,omitempty"`
	ReturnFields     []string    `json:"returnFields,omitempty"`
}

// Validate checks structure only. Typed operator legality and literal
// coercion belong to the query engine.
func (q *Query) Validate() error {
	if q.Pagination.Offset < 0 {
		return fmt.Errorf("pagination offset must be non-negative, got %d", q.Pagination.Offset)
	}
	if q.Pagination.Limit < 0 {
		return fmt.Errorf("pagination limit must be non-negative, got %d", q.Pagination.Limit)
	}
	if q.Sort != nil {
		switch q.Sort.Direction {
		case "", DirAsc, DirDesc:
		default:
			return fmt.Errorf("sort direction must be %q or %q, got %q", DirAsc, DirDesc, q.Sort.Direction)
		}
	}
	return q.Conditions.Validate()
}

// FacetBucket is one distinct value with its document count.
type FacetBucket struct {
	Value interface{} `json:"value"`
	Count int64       `json:"count"`
}

// FacetResult is a count-per-value breakdown of one field under the current
// filter, excluding that field's own condition. Overflow beyond the bucket
// cap is collapsed into Other.
type FacetResult struct {
	Field   string        `json:"field"`
	Buckets []FacetBucket `json:"buckets"`
	Other   int64         `json:"other,omitempty"`
}

// Result is a page of documents plus the filter-wide total and optional
// facet tallies.
type Result struct {
	Documents []*Document             `json:"documents"`
	Total     int64                   `json:"total"`
	Facets    map[string]*FacetResult `json:"facets,omitempty"`
	TookMs    int64                   `json:"tookMs"`
}
