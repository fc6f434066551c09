// Package sqlite provides the SQLite implementation of the storage
// interfaces. It is the default backend: CGO-free via modernc.org/sqlite,
// with WAL mode for read concurrency and a single writer connection.
package sqlite

// Schema contains the SQL statements to create the database schema.
// Aliases and tags are stored as JSON arrays so the JSON1 functions can
// perform atomic membership-checked updates and tag lookups.
const Schema = `
-- Entities table: canonical entities, scoped per tenant and type.
-- Canonical names are deliberately NOT unique: two distinct entities of the
-- same type may share normalized text and remain distinct ids.
CREATE TABLE IF NOT EXISTS entities (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases TEXT NOT NULL DEFAULT '[]',
    confidence REAL NOT NULL DEFAULT 1.0,
    metadata TEXT,

    -- Embedding stored as little-endian float32 BLOB
    embedding BLOB,
    embedding_model TEXT,
    embedding_dimension INTEGER,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, entity_type, id)
);

CREATE INDEX IF NOT EXISTS idx_entities_tenant_id ON entities(tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_entities_tenant_type ON entities(tenant_id, entity_type);

-- Alignment records: one field of one stored record points to exactly one
-- entity at a time. Re-alignment overwrites via single-row upsert.
CREATE TABLE IF NOT EXISTS entity_alignments (
    tenant_id TEXT NOT NULL,
    memory_key TEXT NOT NULL,
    field_path TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    original_value TEXT NOT NULL,
    confidence TEXT NOT NULL,
    aligned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, memory_key, field_path)
);

CREATE INDEX IF NOT EXISTS idx_alignments_entity ON entity_alignments(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_alignments_path_entity ON entity_alignments(tenant_id, field_path, entity_id);

-- Stored-record mirror: read by recognition and filter evaluation.
CREATE TABLE IF NOT EXISTS records (
    tenant_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, key)
);

CREATE INDEX IF NOT EXISTS idx_records_tenant_updated ON records(tenant_id, updated_at DESC);
`
