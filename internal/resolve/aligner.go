package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// FieldSpec describes one field of a memory record to align: the field
// path within the record, the raw value found there, and the entity type it
// should resolve against. Threshold overrides the call-level and default
// thresholds when set.
type FieldSpec struct {
	FieldName  string
	Value      string
	EntityType string
	Threshold  *float64
}

// AlignOptions carries call-level settings for AlignEntityFields.
type AlignOptions struct {
	TenantID   string
	Threshold  *float64
	AutoCreate *bool
}

// alignWorkers bounds the number of fields resolved concurrently in one
// AlignEntityFields call.
const alignWorkers = 4

// Aligner links raw field values in memory records to canonical entities,
// creating entities on demand and recording each decision as an alignment.
type Aligner struct {
	store            storage.Store
	finder           *Finder
	defaultThreshold float64
	autoCreate       bool
}

// NewAligner creates an aligner. threshold <= 0 selects
// DefaultMatchThreshold; autoCreate controls whether unmatched values spawn
// new entities when the caller does not say otherwise.
func NewAligner(store storage.Store, finder *Finder, threshold float64, autoCreate bool) *Aligner {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Aligner{
		store:            store,
		finder:           finder,
		defaultThreshold: threshold,
		autoCreate:       autoCreate,
	}
}

// AlignEntityFields resolves each field against the entity store and
// persists an alignment per resolved field. The returned map is keyed by
// field path; a nil value means the field did not resolve and auto-create
// was off. Resolution failures for individual fields (for example an
// embedding backend outage) are logged and treated as unmatched rather
// than failing the whole call.
func (a *Aligner) AlignEntityFields(ctx context.Context, memoryKey string, fields []FieldSpec, opts AlignOptions) (map[string]*types.AlignmentRecord, error) {
	if opts.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant ID is required", storage.ErrInvalidInput)
	}
	if memoryKey == "" {
		return nil, fmt.Errorf("%w: memory key is required", storage.ErrInvalidInput)
	}

	autoCreate := a.autoCreate
	if opts.AutoCreate != nil {
		autoCreate = *opts.AutoCreate
	}

	results := make(map[string]*types.AlignmentRecord, len(fields))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, alignWorkers)

	for _, field := range fields {
		wg.Add(1)
		sem <- struct{}{}
		go func(field FieldSpec) {
			defer wg.Done()
			defer func() { <-sem }()

			record := a.alignField(ctx, memoryKey, field, opts, autoCreate)
			mu.Lock()
			results[field.FieldName] = record
			mu.Unlock()
		}(field)
	}
	wg.Wait()

	return results, nil
}

// alignField resolves a single field and writes its alignment. Returns nil
// when the field stays unaligned.
func (a *Aligner) alignField(ctx context.Context, memoryKey string, field FieldSpec, opts AlignOptions, autoCreate bool) *types.AlignmentRecord {
	threshold := a.defaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if field.Threshold != nil {
		threshold = *field.Threshold
	}

	match, err := a.finder.Resolve(ctx, field.Value, field.EntityType, opts.TenantID, threshold)
	if err != nil {
		log.Printf("aligner: resolution of field %q failed, treating as unmatched: %v", field.FieldName, err)
		match = nil
	}

	var entityID string
	var band types.ConfidenceBand

	switch {
	case match != nil:
		entityID = match.EntityIDs[0]
		band = bandForMatch(match)
		if err := a.store.AppendAlias(ctx, opts.TenantID, entityID, field.Value); err != nil {
			log.Printf("aligner: failed to append alias %q to entity %s: %v", field.Value, entityID, err)
		}
	case autoCreate:
		created, err := a.createEntity(ctx, opts.TenantID, field)
		if err != nil {
			log.Printf("aligner: failed to create entity for field %q: %v", field.FieldName, err)
			return nil
		}
		entityID = created.ID
		band = types.ConfidenceHigh
	default:
		return nil
	}

	alignment := &types.AlignmentRecord{
		TenantID:      opts.TenantID,
		MemoryKey:     memoryKey,
		FieldPath:     field.FieldName,
		EntityID:      entityID,
		OriginalValue: field.Value,
		Confidence:    band,
		AlignedAt:     time.Now().UTC(),
	}
	if err := a.store.UpsertAlignment(ctx, alignment); err != nil {
		log.Printf("aligner: failed to upsert alignment for field %q: %v", field.FieldName, err)
		return nil
	}
	return alignment
}

// createEntity makes a new canonical entity from an unmatched value. The
// value becomes both the canonical name and the first alias. Embedding
// generation is best-effort.
func (a *Aligner) createEntity(ctx context.Context, tenantID string, field FieldSpec) (*types.Entity, error) {
	now := time.Now().UTC()
	entity := &types.Entity{
		ID:            fmt.Sprintf("ent:%s:%s", field.EntityType, uuid.New().String()),
		TenantID:      tenantID,
		Type:          field.EntityType,
		CanonicalName: field.Value,
		Aliases:       []string{field.Value},
		Confidence:    1.0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if a.finder.HasEmbedder() {
		vector, err := a.finder.Embed(ctx, field.Value)
		if err != nil {
			log.Printf("aligner: embedding for new entity %q failed, storing without vector: %v", field.Value, err)
		} else {
			entity.Embedding = vector
			entity.EmbeddingDimension = len(vector)
		}
	}

	if err := a.store.CreateEntity(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// UnlinkEntity removes the alignment at the given field path of a memory
// record. Returns storage.ErrNotFound when no alignment exists there.
func (a *Aligner) UnlinkEntity(ctx context.Context, tenantID, memoryKey, fieldPath string) error {
	return a.store.DeleteAlignment(ctx, tenantID, memoryKey, fieldPath)
}

// ForceRealign points the alignment at the given field path to a specific
// entity, bypassing resolution. The entity must exist; the alignment is
// written with high confidence. The original value of a pre-existing
// alignment is preserved.
func (a *Aligner) ForceRealign(ctx context.Context, tenantID, memoryKey, fieldPath, entityID string) (*types.AlignmentRecord, error) {
	entity, err := a.store.GetEntity(ctx, tenantID, entityID)
	if err != nil {
		return nil, err
	}

	originalValue := entity.CanonicalName
	if existing, err := a.store.GetAlignment(ctx, tenantID, memoryKey, fieldPath); err == nil {
		originalValue = existing.OriginalValue
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	alignment := &types.AlignmentRecord{
		TenantID:      tenantID,
		MemoryKey:     memoryKey,
		FieldPath:     fieldPath,
		EntityID:      entityID,
		OriginalValue: originalValue,
		Confidence:    types.ConfidenceHigh,
		AlignedAt:     time.Now().UTC(),
	}
	if err := a.store.UpsertAlignment(ctx, alignment); err != nil {
		return nil, err
	}
	return alignment, nil
}

// EntityStats reports entity and alignment counts for a tenant, optionally
// restricted to one entity type.
func (a *Aligner) EntityStats(ctx context.Context, tenantID, entityType string) (*types.EntityStats, error) {
	byType, err := a.store.CountEntitiesByType(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &types.EntityStats{EntitiesByType: byType}
	if entityType != "" {
		stats.EntitiesByType = map[string]int{entityType: byType[entityType]}
		stats.TotalEntities = byType[entityType]
	} else {
		for _, n := range byType {
			stats.TotalEntities += n
		}
	}

	alignments, err := a.store.CountAlignments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats.TotalAlignments = alignments

	return stats, nil
}

// BackfillEmbeddings generates and stores vectors for entities of the given
// type that have none. Returns ErrServiceUnavailable when no embedding
// generator is configured. Individual embedding failures abort the pass so
// a dead backend does not burn through the rate limit.
func (a *Aligner) BackfillEmbeddings(ctx context.Context, tenantID, entityType string) (int, error) {
	if !a.finder.HasEmbedder() {
		return 0, ErrServiceUnavailable
	}

	entities, err := a.store.ListEntities(ctx, tenantID, entityType)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, entity := range entities {
		if len(entity.Embedding) > 0 {
			continue
		}
		vector, err := a.finder.Embed(ctx, entity.CanonicalName)
		if err != nil {
			return updated, fmt.Errorf("aligner: embedding backfill stopped at entity %s: %w", entity.ID, err)
		}
		if err := a.store.UpdateEmbedding(ctx, tenantID, entity.ID, vector, ""); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// bandForMatch maps a finder match to a confidence band: the deterministic
// strategies are high or medium, embedding matches are banded by score.
func bandForMatch(match *Match) types.ConfidenceBand {
	switch match.Strategy {
	case StrategyExact, StrategyAlias:
		return types.ConfidenceHigh
	case StrategySimilarity:
		return types.ConfidenceMedium
	default:
		return types.BandFromSimilarity(match.Similarity)
	}
}
