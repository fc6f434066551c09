// Package cognate is the identity-resolution layer for agent memory
// stores: it aligns raw field values in memory records to canonical
// entities, answers entity-aware queries over those records, and decides
// whether a candidate record duplicates one already stored.
package cognate

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/cognate/internal/config"
	"github.com/scrypster/cognate/internal/llm"
	"github.com/scrypster/cognate/internal/query"
	"github.com/scrypster/cognate/internal/recognition"
	"github.com/scrypster/cognate/internal/resolve"
	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/internal/storage/postgres"
	"github.com/scrypster/cognate/internal/storage/sqlite"
	"github.com/scrypster/cognate/pkg/types"
)

// Filter re-exports the query filter so callers build predicates without
// importing internal packages.
type Filter = query.Filter

// Service composes the resolution stack: storage, finder, aligner, query
// evaluator and recognizer. All operations are tenant-scoped and safe for
// concurrent use.
type Service struct {
	store      storage.Store
	finder     *resolve.Finder
	aligner    *resolve.Aligner
	evaluator  *query.Evaluator
	recognizer *recognition.Recognizer
}

// Open builds a Service from configuration: storage backend, optional
// embedding generator and optional LLM arbiter. A missing LLM block
// degrades gracefully to the deterministic strategies.
func Open(ctx context.Context, cfg *config.Config) (*Service, error) {
	var store storage.Store
	var err error
	switch cfg.Storage.Engine {
	case "postgres":
		store, err = postgres.NewStore(cfg.Storage.DSN)
	case "sqlite", "":
		store, err = sqlite.NewStore(cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown storage engine %q", storage.ErrInvalidInput, cfg.Storage.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Engine, err)
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}
	disambiguator, err := llm.NewDisambiguator(cfg.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}
	if disambiguator == nil {
		log.Printf("cognate: no LLM provider configured, ambiguous recognitions resolve to no-match")
	}

	return New(store, embedder, disambiguator, cfg.Resolution), nil
}

// New wires a Service from already-constructed parts. embedder and
// disambiguator may be nil.
func New(store storage.Store, embedder llm.EmbeddingGenerator, disambiguator llm.Disambiguator, res config.ResolutionConfig) *Service {
	finder := resolve.NewFinder(store, embedder)
	scorer := recognition.NewScorer(finder)
	return &Service{
		store:      store,
		finder:     finder,
		aligner:    resolve.NewAligner(store, finder, res.MatchThreshold, res.AutoCreate),
		evaluator:  query.NewEvaluator(finder, store, store),
		recognizer: recognition.NewRecognizer(store, scorer, finder, disambiguator, res.RecognitionThreshold),
	}
}

// Close releases the underlying storage.
func (s *Service) Close() error {
	return s.store.Close()
}

// Store exposes the storage layer for record and entity management.
func (s *Service) Store() storage.Store { return s.store }

// AlignEntityFields resolves the given fields of a memory record to
// canonical entities and persists the alignments.
func (s *Service) AlignEntityFields(ctx context.Context, memoryKey string, fields []resolve.FieldSpec, opts resolve.AlignOptions) (map[string]*types.AlignmentRecord, error) {
	return s.aligner.AlignEntityFields(ctx, memoryKey, fields, opts)
}

// FindMatchingEntityIDs resolves a raw value to entity IDs using the full
// strategy cascade.
func (s *Service) FindMatchingEntityIDs(ctx context.Context, value, entityType, tenantID string, threshold float64) ([]string, error) {
	return s.finder.FindMatchingEntityIDs(ctx, value, entityType, tenantID, threshold)
}

// QueryRecords returns the tenant's records matching all filters.
func (s *Service) QueryRecords(ctx context.Context, tenantID string, filters []*Filter) ([]*types.Record, error) {
	return s.evaluator.Apply(ctx, tenantID, filters)
}

// Recognize decides whether the candidate duplicates a stored record.
func (s *Service) Recognize(ctx context.Context, candidate map[string]interface{}, tenantID string, opts recognition.RecognizeOptions) (*types.RecognitionResult, error) {
	return s.recognizer.Recognize(ctx, candidate, tenantID, opts)
}

// UnlinkEntity removes the alignment at a field path of a memory record.
func (s *Service) UnlinkEntity(ctx context.Context, tenantID, memoryKey, fieldPath string) error {
	return s.aligner.UnlinkEntity(ctx, tenantID, memoryKey, fieldPath)
}

// ForceRealign points an alignment at a specific entity, bypassing
// resolution.
func (s *Service) ForceRealign(ctx context.Context, tenantID, memoryKey, fieldPath, entityID string) (*types.AlignmentRecord, error) {
	return s.aligner.ForceRealign(ctx, tenantID, memoryKey, fieldPath, entityID)
}

// EntityStats reports entity and alignment counts for a tenant.
func (s *Service) EntityStats(ctx context.Context, tenantID, entityType string) (*types.EntityStats, error) {
	return s.aligner.EntityStats(ctx, tenantID, entityType)
}

// BackfillEmbeddings generates vectors for entities that lack one.
func (s *Service) BackfillEmbeddings(ctx context.Context, tenantID, entityType string) (int, error) {
	return s.aligner.BackfillEmbeddings(ctx, tenantID, entityType)
}
