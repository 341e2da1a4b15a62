// Package schema infers the queryable field catalog from stored documents.
// There is no hardcoded per-source schema: descriptors are derived from
// sampled data and may go stale, which is acceptable because the query
// engine validates literal coercion independently at compile time.
package schema

import (
	"time"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// UI grouping labels for the schema endpoint.
const (
	GroupCore         = "core"
	GroupDate         = "date"
	GroupPublication  = "publication"
	GroupTrial        = "trial"
	GroupCommunity    = "community"
	GroupAdverseEvent = "adverse-event"
	GroupIdentifiers  = "identifiers"
	GroupOther        = "other"
)

// FieldDescriptor describes one queryable field as observed in the corpus.
// Descriptors are derived metadata, not ground truth.
type FieldDescriptor struct {
	// Name is the dotted path into the header or attribute bag.
	Name string `json:"name"`

	// Kind is the majority-inferred type.
	Kind model.FieldKind `json:"kind"`

	// Operators valid for Kind, from the shared operator table.
	Operators []model.FilterOp `json:"operators"`

	// SampleValues is a small set of observed values for suggestion UIs.
	SampleValues []interface{} `json:"sampleValues,omitempty"`

	// Coverage is how many sampled documents carried the field.
	Coverage int `json:"coverage"`

	// Categories are the source categories exposing the field.
	Categories []string `json:"categories"`

	// Group is the UI grouping label.
	Group string `json:"group"`
}

// Catalog is an immutable field-descriptor snapshot. Refreshes replace the
// whole catalog atomically; a live catalog is never mutated.
type Catalog struct {
	Fields     []FieldDescriptor
	SampleSize int
	BuiltAt    time.Time

	byName map[string]*FieldDescriptor
}

// Field looks up a descriptor by dotted path.
func (c *Catalog) Field(name string) (*FieldDescriptor, bool) {
	fd, ok := c.byName[name]
	return fd, ok
}

// KindFor returns the inferred kind for a field, KindUnknown when the field
// was never observed.
func (c *Catalog) KindFor(name string) model.FieldKind {
	if kind, ok := model.HeaderFields[name]; ok {
		return kind
	}
	if fd, ok := c.byName[name]; ok {
		return fd.Kind
	}
	return model.KindUnknown
}

// ByCategory returns the descriptors exposed by a source category, or all
// descriptors when category is empty.
func (c *Catalog) ByCategory(category string) []FieldDescriptor {
	if category == "" {
		return c.Fields
	}
	out := make([]FieldDescriptor, 0, len(c.Fields))
	for _, fd := range c.Fields {
		for _, cat := range fd.Categories {
			if cat == category {
				out = append(out, fd)
				break
			}
		}
	}
	return out
}

// OperatorTable is the global operator-applicability table keyed by kind,
// shared verbatim with the query engine.
func OperatorTable() map[model.FieldKind][]model.FilterOp {
	table := make(map[model.FieldKind][]model.FilterOp, 6)
	for _, kind := range []model.FieldKind{
		model.KindString, model.KindNumber, model.KindBool,
		model.KindDate, model.KindList, model.KindMap,
	} {
		table[kind] = model.OpsForKind(kind)
	}
	return table
}
