// Package postgres provides a PostgreSQL implementation of the storage
// interfaces, with pgvector-backed embedding search when the extension is
// available.
package postgres

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be
// re-applied on startup.
const Schema = `
-- Entities table: canonical entities, scoped per tenant and type.
CREATE TABLE IF NOT EXISTS entities (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    aliases JSONB NOT NULL DEFAULT '[]',
    confidence REAL NOT NULL DEFAULT 1.0,
    metadata JSONB,

    -- Embedding stored as little-endian float32 BYTEA for portability;
    -- embedding_vec (pgvector) is added by MigrationPgvector when available.
    embedding BYTEA,
    embedding_model TEXT,
    embedding_dimension INTEGER,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, entity_type, id)
);

CREATE INDEX IF NOT EXISTS idx_entities_tenant_id ON entities(tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_entities_tenant_type ON entities(tenant_id, entity_type);

-- Alignment records: unique per (tenant_id, memory_key, field_path).
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

-- Stored-record mirror.
CREATE TABLE IF NOT EXISTS records (
    tenant_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value JSONB NOT NULL,
    tags JSONB NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (tenant_id, key)
);

CREATE INDEX IF NOT EXISTS idx_records_tenant_updated ON records(tenant_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_tags ON records USING GIN (tags);
`

// MigrationPgvector adds the vector column used for indexed similarity
// ranking. Applied only when the pgvector extension is installed.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'entities' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE entities ADD COLUMN embedding_vec vector;
    END IF;
END $$;
`
