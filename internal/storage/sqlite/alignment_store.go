package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// UpsertAlignment stores an alignment record, keyed uniquely by
// (tenant_id, memory_key, field_path). Re-aligning the same field
// overwrites the previous row; last writer wins.
func (s *Store) UpsertAlignment(ctx context.Context, rec *types.AlignmentRecord) error {
	if rec == nil {
		return storage.ErrInvalidInput
	}
	if rec.TenantID == "" || rec.MemoryKey == "" || rec.FieldPath == "" || rec.EntityID == "" {
		return fmt.Errorf("%w: alignment tenant_id, memory_key, field_path and entity_id are required", storage.ErrInvalidInput)
	}

	if rec.AlignedAt.IsZero() {
		rec.AlignedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_alignments (
			tenant_id, memory_key, field_path, entity_id, original_value, confidence, aligned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, memory_key, field_path) DO UPDATE SET
			entity_id = excluded.entity_id,
			original_value = excluded.original_value,
			confidence = excluded.confidence,
			aligned_at = excluded.aligned_at
	`, rec.TenantID, rec.MemoryKey, rec.FieldPath, rec.EntityID, rec.OriginalValue, string(rec.Confidence), rec.AlignedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert alignment (key=%q path=%q): %w", rec.MemoryKey, rec.FieldPath, err)
	}

	return nil
}

// GetAlignment retrieves one alignment record.
func (s *Store) GetAlignment(ctx context.Context, tenantID, memoryKey, fieldPath string) (*types.AlignmentRecord, error) {
	rec, err := scanAlignment(s.db.QueryRowContext(ctx, `
		SELECT tenant_id, memory_key, field_path, entity_id, original_value, confidence, aligned_at
		FROM entity_alignments
		WHERE tenant_id = ? AND memory_key = ? AND field_path = ?
	`, tenantID, memoryKey, fieldPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: alignment (key=%q path=%q): %w", memoryKey, fieldPath, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get alignment (key=%q path=%q): %w", memoryKey, fieldPath, err)
	}

	return rec, nil
}

// DeleteAlignment removes one alignment record.
func (s *Store) DeleteAlignment(ctx context.Context, tenantID, memoryKey, fieldPath string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entity_alignments
		WHERE tenant_id = ? AND memory_key = ? AND field_path = ?
	`, tenantID, memoryKey, fieldPath)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete alignment (key=%q path=%q): %w", memoryKey, fieldPath, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: alignment (key=%q path=%q): %w", memoryKey, fieldPath, storage.ErrNotFound)
	}

	return nil
}

// FindKeysByEntityIDs returns the memory keys whose alignment at fieldPath
// points to any of the given entity IDs, newest alignment first.
func (s *Store) FindKeysByEntityIDs(ctx context.Context, tenantID, fieldPath string, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(entityIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{tenantID, fieldPath}
	for _, id := range entityIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT memory_key
		FROM entity_alignments
		WHERE tenant_id = ? AND field_path = ? AND entity_id IN (%s)
		ORDER BY memory_key
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find keys by entities (path=%q): %w", fieldPath, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ListRecentAlignments returns a tenant's most recent alignments.
func (s *Store) ListRecentAlignments(ctx context.Context, tenantID string, limit int) ([]*types.AlignmentRecord, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, memory_key, field_path, entity_id, original_value, confidence, aligned_at
		FROM entity_alignments
		WHERE tenant_id = ?
		ORDER BY aligned_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list alignments (tenant=%q): %w", tenantID, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*types.AlignmentRecord
	for rows.Next() {
		rec, err := scanAlignment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan alignment: %w", err)
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// CountAlignments returns the total number of alignments for a tenant.
func (s *Store) CountAlignments(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entity_alignments WHERE tenant_id = ?", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count alignments (tenant=%q): %w", tenantID, err)
	}
	return count, nil
}

// scanAlignment reads one alignment row.
func scanAlignment(row rowScanner) (*types.AlignmentRecord, error) {
	var (
		rec        types.AlignmentRecord
		confidence string
	)

	err := row.Scan(&rec.TenantID, &rec.MemoryKey, &rec.FieldPath, &rec.EntityID,
		&rec.OriginalValue, &confidence, &rec.AlignedAt)
	if err != nil {
		return nil, err
	}

	rec.Confidence = types.ConfidenceBand(confidence)
	return &rec, nil
}
