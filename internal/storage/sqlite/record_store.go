package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

// PutRecord creates or updates a record (upsert semantics). The surrounding
// memory store calls this to keep the mirror current; tests use it for
// fixtures.
func (s *Store) PutRecord(ctx context.Context, record *types.Record) error {
	if record == nil {
		return storage.ErrInvalidInput
	}
	if record.TenantID == "" || record.Key == "" {
		return fmt.Errorf("%w: record tenant_id and key are required", storage.ErrInvalidInput)
	}

	valueJSON, err := json.Marshal(record.Value)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal record value: %w", err)
	}

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal record tags: %w", err)
	}

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (tenant_id, key, value, tags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET
			value = excluded.value,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, record.TenantID, record.Key, string(valueJSON), string(tagsJSON), record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to put record %q: %w", record.Key, err)
	}

	return nil
}

// GetRecord retrieves one record by key.
func (s *Store) GetRecord(ctx context.Context, tenantID, key string) (*types.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT tenant_id, key, value, tags, updated_at
		FROM records
		WHERE tenant_id = ? AND key = ?
	`, tenantID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: record %q: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record %q: %w", key, err)
	}

	return rec, nil
}

// GetRecords retrieves multiple records by key. Missing keys are skipped.
func (s *Store) GetRecords(ctx context.Context, tenantID string, keys []string) ([]*types.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{tenantID}
	for _, k := range keys {
		args = append(args, k)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT tenant_id, key, value, tags, updated_at
		FROM records
		WHERE tenant_id = ? AND key IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get records (tenant=%q keys=%d): %w", tenantID, len(keys), err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// FindKeysByTags returns keys of records carrying at least one of the given
// tags, most recently updated first.
func (s *Store) FindKeysByTags(ctx context.Context, tenantID string, tags []string, limit int) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	if limit < 1 {
		limit = 50
	}

	placeholders := strings.Repeat("?,", len(tags))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{tenantID}
	for _, tag := range tags {
		args = append(args, tag)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT r.key, r.updated_at
		FROM records r, json_each(r.tags) jt
		WHERE r.tenant_id = ? AND jt.value IN (%s)
		ORDER BY r.updated_at DESC
		LIMIT ?
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find keys by tags %v: %w", tags, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		var updatedAt time.Time
		if err := rows.Scan(&key, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ListRecentRecords returns the tenant's most recently updated records.
func (s *Store) ListRecentRecords(ctx context.Context, tenantID string, limit int) ([]*types.Record, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, key, value, tags, updated_at
		FROM records
		WHERE tenant_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list recent records (tenant=%q): %w", tenantID, err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*types.Record, error) {
	var records []*types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanRecord reads one record row.
func scanRecord(row rowScanner) (*types.Record, error) {
	var (
		rec       types.Record
		valueJSON string
		tagsJSON  string
	)

	if err := row.Scan(&rec.TenantID, &rec.Key, &valueJSON, &tagsJSON, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(valueJSON), &rec.Value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record value: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record tags: %w", err)
	}

	return &rec, nil
}
