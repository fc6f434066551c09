package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/cognate/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

// NewStore opens a SQLite database, configures WAL mode, and creates the
// schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent alignment load. WAL mode allows concurrent readers to
	// proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection for tests and tooling.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// serializeEmbedding encodes a float32 vector as a little-endian BLOB.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian BLOB back to a float32 vector.
func deserializeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("sqlite: embedding blob length %d is not a multiple of 4", len(data))
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding, nil
}
