// Package storage provides composable storage interfaces for the Cognate
// identity-resolution layer.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Every operation is
// tenant-scoped: no implementation may observe or mutate another tenant's
// entities, alignments, or records.
package storage

import (
	"context"

	"github.com/scrypster/cognate/pkg/types"
)

// EntityStore persists canonical entities.
type EntityStore interface {
	// CreateEntity inserts a new entity. The caller supplies the ID.
	CreateEntity(ctx context.Context, entity *types.Entity) error

	// GetEntity retrieves an entity by ID within a tenant.
	// Returns ErrNotFound if the entity doesn't exist for that tenant.
	GetEntity(ctx context.Context, tenantID, id string) (*types.Entity, error)

	// ListEntities returns all entities of the given type for a tenant.
	// An empty entityType returns entities of every type.
	ListEntities(ctx context.Context, tenantID, entityType string) ([]*types.Entity, error)

	// AppendAlias adds an alias to an entity if it is not already present.
	// The append is a single conditional UPDATE so concurrent alignments of
	// the same entity cannot lose updates. Returns ErrNotFound if the
	// entity doesn't exist.
	AppendAlias(ctx context.Context, tenantID, id, alias string) error

	// UpdateEmbedding stores or replaces the entity's embedding vector.
	UpdateEmbedding(ctx context.Context, tenantID, id string, embedding []float32, model string) error

	// SearchByEmbedding ranks a tenant's entities of the given type by
	// cosine similarity to the query vector and returns those at or above
	// the threshold, best first, capped at limit.
	SearchByEmbedding(ctx context.Context, tenantID, entityType string, query []float32, threshold float64, limit int) ([]EntityMatch, error)

	// CountEntitiesByType returns the number of entities per type for a
	// tenant.
	CountEntitiesByType(ctx context.Context, tenantID string) (map[string]int, error)
}

// AlignmentStore persists field-to-entity alignment records.
type AlignmentStore interface {
	// UpsertAlignment stores an alignment record, keyed uniquely by
	// (tenant_id, memory_key, field_path). Last writer wins.
	UpsertAlignment(ctx context.Context, rec *types.AlignmentRecord) error

	// GetAlignment retrieves one alignment record.
	// Returns ErrNotFound if no alignment exists for the key/path.
	GetAlignment(ctx context.Context, tenantID, memoryKey, fieldPath string) (*types.AlignmentRecord, error)

	// DeleteAlignment removes one alignment record.
	// Returns ErrNotFound if no alignment exists for the key/path.
	DeleteAlignment(ctx context.Context, tenantID, memoryKey, fieldPath string) error

	// FindKeysByEntityIDs returns the memory keys whose alignment at
	// fieldPath points to any of the given entity IDs, newest first.
	FindKeysByEntityIDs(ctx context.Context, tenantID, fieldPath string, entityIDs []string) ([]string, error)

	// ListRecentAlignments returns a tenant's most recent alignment
	// records, newest first, capped at limit.
	ListRecentAlignments(ctx context.Context, tenantID string, limit int) ([]*types.AlignmentRecord, error)

	// CountAlignments returns the total number of alignment records for a
	// tenant.
	CountAlignments(ctx context.Context, tenantID string) (int, error)
}

// RecordStore reads the stored-record mirror used during recognition and
// filter evaluation. PutRecord exists for the surrounding memory store (and
// tests) to keep the mirror current; the resolution layer itself only reads.
type RecordStore interface {
	// GetRecord retrieves one record by key.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, tenantID, key string) (*types.Record, error)

	// GetRecords retrieves multiple records by key. Missing keys are
	// skipped, not errors.
	GetRecords(ctx context.Context, tenantID string, keys []string) ([]*types.Record, error)

	// FindKeysByTags returns keys of records carrying at least one of the
	// given tags, most recently updated first, capped at limit.
	FindKeysByTags(ctx context.Context, tenantID string, tags []string, limit int) ([]string, error)

	// ListRecentRecords returns the most recently updated records for a
	// tenant, capped at limit.
	ListRecentRecords(ctx context.Context, tenantID string, limit int) ([]*types.Record, error)

	// PutRecord creates or updates a record (upsert semantics).
	PutRecord(ctx context.Context, record *types.Record) error
}

// Store composes the three persistence concerns behind one handle.
type Store interface {
	EntityStore
	AlignmentStore
	RecordStore

	// Close releases any resources held by the store.
	Close() error
}
