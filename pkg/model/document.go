package model

import (
	"errors"
	"fmt"
	"regexp"
)

var sourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:]{1,128}$`)

// Document is the unit of aggregation. The header fields are always present
// and typed; Attrs is the open-ended, source-specific attribute bag with no
// fixed schema. A document is replaced atomically on re-ingestion, keyed by
// (Source, ExternalID).
type Document struct {
	// ID is the internal identifier, derived from Source and ExternalID.
	ID string `json:"id" bson:"_id"`

	// Source names the origin system (e.g. "clinicaltrials", "pubmed").
	Source string `json:"source" bson:"source"`

	// ExternalID is the identifier within the source system.
	ExternalID string `json:"externalId" bson:"external_id"`

	// Category is the source category label (trial, publication,
	// adverse-event, community).
	Category string `json:"category" bson:"category"`

	Title string `json:"title" bson:"title"`
	Body  string `json:"body" bson:"body"`

	// CreatedAt and UpdatedAt are unix milliseconds.
	CreatedAt int64 `json:"createdAt" bson:"created_at"`
	UpdatedAt int64 `json:"updatedAt" bson:"updated_at"`

	// Score is the computed relevance of the document to its disease area,
	// assigned upstream at ingestion.
	Score float64 `json:"score,omitempty" bson:"score,omitempty"`

	// Attrs is the attribute bag. Shape varies per document, even within a
	// single source.
	Attrs map[string]interface{} `json:"attrs" bson:"attrs"`

	// TextScore is populated only on free-text searches, from the store's
	// relevance ranking. Never persisted.
	TextScore float64 `json:"textScore,omitempty" bson:"text_score,omitempty"`
}

// DocumentID derives the internal id from source and external id.
func DocumentID(source, externalID string) string {
	return source + ":" + externalID
}

// Validate checks the header invariants.
func (d *Document) Validate() error {
	if d == nil {
		return errors.New("document cannot be nil")
	}
	if d.Source == "" {
		return errors.New("document source is required")
	}
	if d.ExternalID == "" {
		return errors.New("document external id is required")
	}
	if !sourceIDRegex.MatchString(d.ExternalID) {
		return fmt.Errorf("invalid external id %q: must be 1-128 characters of a-z, A-Z, 0-9, _, ., -, :", d.ExternalID)
	}
	if d.Category == "" {
		return errors.New("document category is required")
	}
	if d.Title == "" {
		return errors.New("document title is required")
	}
	return nil
}

// HeaderFields lists queryable header field names and their kinds. Everything
// else resolves into the attribute bag.
var HeaderFields = map[string]FieldKind{
	"id":         KindString,
	"source":     KindString,
	"externalId": KindString,
	"category":   KindString,
	"title":      KindString,
	"body":       KindString,
	"createdAt":  KindDate,
	"updatedAt":  KindDate,
	"score":      KindNumber,
}

// IsHeaderField reports whether the dotted field path names a header field.
func IsHeaderField(field string) bool {
	_, ok := HeaderFields[field]
	return ok
}
