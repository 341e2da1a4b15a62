// Package ingest is the write path: scrapers hand over documents, the
// service normalizes and stores them and announces the change so caches can
// invalidate. The scrapers themselves live outside this system.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cliniscope/cliniscope/internal/core/pubsub"
	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// SubjectDocuments is the subject space for corpus-change events;
// one token per source category, e.g. "docs.trial".
const SubjectDocuments = "docs"

// Event announces one upserted document.
type Event struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Category string `json:"category"`
	At       int64  `json:"at"`
}

// Service validates and stores incoming documents.
type Service struct {
	store  storage.DocumentStore
	bus    pubsub.Bus
	logger *slog.Logger
}

// New creates the ingestion service. bus may be nil; events are then
// skipped, which only delays cache invalidation until TTL expiry.
func New(store storage.DocumentStore, bus pubsub.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, bus: bus, logger: logger}
}

// Upsert stores one document, replacing any previous version with the same
// (source, external id) identity atomically.
func (s *Service) Upsert(ctx context.Context, doc *model.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	doc.ID = model.DocumentID(doc.Source, doc.ExternalID)
	doc.Attrs = normalizeAttrs(doc.Attrs)

	if err := s.store.Upsert(ctx, doc); err != nil {
		return model.WrapStoreError(err)
	}

	s.publish(ctx, doc)
	return nil
}

// BatchError reports one failed document from a batch.
type BatchError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// UpsertBatch stores a scraper run's worth of documents. Failures do not
// abort the batch; each document succeeds or fails on its own.
func (s *Service) UpsertBatch(ctx context.Context, docs []*model.Document) (int, []BatchError) {
	var failed []BatchError
	stored := 0
	for _, doc := range docs {
		if err := s.Upsert(ctx, doc); err != nil {
			id := ""
			if doc != nil {
				id = model.DocumentID(doc.Source, doc.ExternalID)
			}
			failed = append(failed, BatchError{ID: id, Error: err.Error()})
			continue
		}
		stored++
	}
	if len(failed) > 0 {
		s.logger.Warn("batch ingest completed with failures",
			"stored", stored, "failed", len(failed))
	}
	return stored, failed
}

// Get retrieves a document by its source-scoped identity.
func (s *Service) Get(ctx context.Context, source, externalID string) (*model.Document, error) {
	doc, err := s.store.Get(ctx, source, externalID)
	if err != nil {
		return nil, model.WrapStoreError(err)
	}
	return doc, nil
}

func (s *Service) publish(ctx context.Context, doc *model.Document) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(Event{
		ID:       doc.ID,
		Source:   doc.Source,
		Category: doc.Category,
		At:       time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	subject := fmt.Sprintf("%s.%s", SubjectDocuments, doc.Category)
	if err := s.bus.Publish(ctx, subject, data); err != nil {
		s.logger.Warn("document event publish failed", "subject", subject, "error", err)
	}
}

// normalizeAttrs rewrites date-like strings in the attribute bag to real
// timestamps so the store can compare them chronologically. Nested maps are
// normalized in place; list elements are normalized one level deep.
func normalizeAttrs(attrs map[string]interface{}) map[string]interface{} {
	for k, v := range attrs {
		attrs[k] = normalizeValue(v)
	}
	return attrs
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if model.IsDateString(val) {
			if t, err := model.ParseDateLiteral(val); err == nil {
				return t.UTC()
			}
		}
		return val
	case map[string]interface{}:
		return normalizeAttrs(val)
	case []interface{}:
		for i, el := range val {
			val[i] = normalizeValue(el)
		}
		return val
	default:
		return v
	}
}
