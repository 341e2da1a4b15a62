package schema

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cliniscope/cliniscope/internal/schema/config"
	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// Service maintains the field catalog over the live corpus. Snapshots are
// replaced atomically on refresh so concurrent readers never observe a
// half-updated catalog.
type Service struct {
	store  storage.DocumentStore
	cfg    config.Config
	logger *slog.Logger

	catalog atomic.Pointer[Catalog]
	buildMu sync.Mutex // serializes rebuilds, not reads
}

// NewService creates the discovery service. The first Describe call builds
// the initial catalog.
func NewService(store storage.DocumentStore, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cfg: cfg, logger: logger}
}

// Describe returns the field descriptors exposed by a source category (all
// when empty), rebuilding the catalog if the snapshot expired.
func (s *Service) Describe(ctx context.Context, category string) ([]FieldDescriptor, error) {
	cat, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return cat.ByCategory(category), nil
}

// KindFor implements the query engine's KindResolver against the latest
// snapshot. Never blocks on a rebuild: with no snapshot yet the kind is
// simply unknown, which the engine handles by falling back to literal types.
func (s *Service) KindFor(field string) model.FieldKind {
	if cat := s.catalog.Load(); cat != nil {
		return cat.KindFor(field)
	}
	return model.KindUnknown
}

// Invalidate drops the current snapshot, forcing a rebuild on next use.
// Call it when a new source category is introduced.
func (s *Service) Invalidate() {
	s.catalog.Store(nil)
}

// current returns a fresh-enough catalog, rebuilding under the build lock
// when needed. Readers who lose the race simply use the winner's snapshot.
func (s *Service) current(ctx context.Context) (*Catalog, error) {
	if cat := s.catalog.Load(); cat != nil && time.Since(cat.BuiltAt) < s.cfg.TTL {
		return cat, nil
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	// Re-check: another goroutine may have rebuilt while we waited.
	if cat := s.catalog.Load(); cat != nil && time.Since(cat.BuiltAt) < s.cfg.TTL {
		return cat, nil
	}

	cat, err := s.rebuild(ctx)
	if err != nil {
		// A stale catalog beats no catalog; staleness is never a
		// correctness hazard.
		if stale := s.catalog.Load(); stale != nil {
			s.logger.Warn("schema catalog rebuild failed, serving stale snapshot",
				"error", err, "built_at", stale.BuiltAt)
			return stale, nil
		}
		return nil, err
	}

	s.catalog.Store(cat)
	return cat, nil
}

func (s *Service) rebuild(ctx context.Context) (*Catalog, error) {
	sources, err := s.store.Sources(ctx)
	if err != nil {
		return nil, err
	}

	var sampled []*model.Document
	for _, source := range sources {
		docs, err := s.store.Sample(ctx, source, s.cfg.SampleSize)
		if err != nil {
			return nil, err
		}
		sampled = append(sampled, docs...)
	}

	cat, conflicts := BuildCatalog(sampled, s.cfg.MaxSampleValues, s.cfg.MaxDepth, time.Now())
	for _, c := range conflicts {
		s.logger.Warn("field type conflict during schema inference",
			"field", c.Field,
			"majority", c.Majority,
			"minority", c.Minority,
		)
	}

	s.logger.Info("schema catalog rebuilt",
		"fields", len(cat.Fields),
		"sampled_docs", cat.SampleSize,
		"sources", len(sources),
	)
	return cat, nil
}
