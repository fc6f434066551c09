package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// CreateEntity inserts a new entity row.
func (s *Store) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if entity.ID == "" || entity.TenantID == "" || entity.Type == "" {
		return fmt.Errorf("%w: entity id, tenant_id and type are required", storage.ErrInvalidInput)
	}
	if entity.CanonicalName == "" {
		return fmt.Errorf("%w: canonical_name is required", storage.ErrInvalidInput)
	}

	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = entity.CreatedAt
	}

	aliases := entity.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal aliases: %w", err)
	}

	var metadataJSON []byte
	if entity.Metadata != nil {
		metadataJSON, err = json.Marshal(entity.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
		}
	}

	var embeddingBlob []byte
	if len(entity.Embedding) > 0 {
		embeddingBlob = serializeEmbedding(entity.Embedding)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (
			id, tenant_id, entity_type, canonical_name, aliases,
			confidence, metadata,
			embedding, embedding_model, embedding_dimension,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entity.ID, entity.TenantID, entity.Type, entity.CanonicalName, string(aliasesJSON),
		entity.Confidence, nullableString(metadataJSON),
		embeddingBlob, nullString(entity.EmbeddingModel), nullInt(entity.EmbeddingDimension),
		entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create entity %q: %w", entity.ID, err)
	}

	return nil
}

// GetEntity retrieves an entity by ID within a tenant.
func (s *Store) GetEntity(ctx context.Context, tenantID, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, entity_type, canonical_name, aliases,
		       confidence, metadata,
		       embedding, embedding_model, embedding_dimension,
		       created_at, updated_at
		FROM entities
		WHERE tenant_id = ? AND id = ?
	`, tenantID, id)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: entity %q: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get entity %q: %w", id, err)
	}

	return entity, nil
}

// ListEntities returns all entities of the given type for a tenant.
// An empty entityType returns entities of every type.
func (s *Store) ListEntities(ctx context.Context, tenantID, entityType string) ([]*types.Entity, error) {
	query := `
		SELECT id, tenant_id, entity_type, canonical_name, aliases,
		       confidence, metadata,
		       embedding, embedding_model, embedding_dimension,
		       created_at, updated_at
		FROM entities
		WHERE tenant_id = ?`
	args := []interface{}{tenantID}

	if entityType != "" {
		query += " AND entity_type = ?"
		args = append(args, entityType)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities (tenant=%q type=%q): %w", tenantID, entityType, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// AppendAlias adds an alias to an entity's alias list if absent. The check
// and the append happen in one UPDATE so concurrent alignments of the same
// entity cannot interleave a read-modify-write and lose an alias.
func (s *Store) AppendAlias(ctx context.Context, tenantID, id, alias string) error {
	if alias == "" {
		return fmt.Errorf("%w: alias is required", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET aliases = json_insert(aliases, '$[#]', ?),
		    updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM json_each(entities.aliases) WHERE json_each.value = ?
		  )
	`, alias, tenantID, id, alias)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append alias to entity %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}

	// Zero rows means either the alias was already present (fine) or the
	// entity doesn't exist (caller bug). Distinguish the two.
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			"SELECT 1 FROM entities WHERE tenant_id = ? AND id = ?", tenantID, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: entity %q: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("sqlite: failed to check entity %q: %w", id, err)
		}
	}

	return nil
}

// UpdateEmbedding stores or replaces an entity's embedding vector.
func (s *Store) UpdateEmbedding(ctx context.Context, tenantID, id string, embedding []float32, model string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities
		SET embedding = ?, embedding_model = ?, embedding_dimension = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`, serializeEmbedding(embedding), model, len(embedding), tenantID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update embedding for entity %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: entity %q: %w", id, storage.ErrNotFound)
	}

	return nil
}

// SearchByEmbedding loads the tenant's entity embeddings and ranks them by
// cosine similarity in Go memory. For typical per-tenant entity counts this
// is cheap; very large tenants should use the PostgreSQL backend, which
// ranks with a pgvector index instead.
func (s *Store) SearchByEmbedding(ctx context.Context, tenantID, entityType string, query []float32, threshold float64, limit int) ([]storage.EntityMatch, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding
		FROM entities
		WHERE tenant_id = ? AND entity_type = ? AND embedding IS NOT NULL
	`, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load embeddings (tenant=%q type=%q): %w", tenantID, entityType, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.EntityMatch
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding row: %w", err)
		}

		embedding, err := deserializeEmbedding(blob)
		if err != nil {
			// A corrupt blob should not poison the whole search.
			continue
		}

		if sim := storage.CosineSimilarity(query, embedding); sim >= threshold {
			matches = append(matches, storage.EntityMatch{ID: id, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: embedding scan: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// CountEntitiesByType returns the number of entities per type for a tenant.
func (s *Store) CountEntitiesByType(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, COUNT(*)
		FROM entities
		WHERE tenant_id = ?
		GROUP BY entity_type
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count entities (tenant=%q): %w", tenantID, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var entityType string
		var count int
		if err := rows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity count: %w", err)
		}
		counts[entityType] = count
	}

	return counts, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntity reads one entity row.
func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		entity        types.Entity
		aliasesJSON   string
		metadataJSON  sql.NullString
		embeddingBlob []byte
		model         sql.NullString
		dimension     sql.NullInt64
	)

	err := row.Scan(
		&entity.ID, &entity.TenantID, &entity.Type, &entity.CanonicalName, &aliasesJSON,
		&entity.Confidence, &metadataJSON,
		&embeddingBlob, &model, &dimension,
		&entity.CreatedAt, &entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(aliasesJSON), &entity.Aliases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entity.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if len(embeddingBlob) > 0 {
		embedding, err := deserializeEmbedding(embeddingBlob)
		if err != nil {
			return nil, err
		}
		entity.Embedding = embedding
	}

	entity.EmbeddingModel = model.String
	entity.EmbeddingDimension = int(dimension.Int64)

	return &entity, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}
