package types

import (
	"strings"
	"time"
)

// Entity represents a canonical real-world referent (a place, person,
// organization, etc.) that multiple surface-text values may denote.
// Entities are scoped to a tenant: the same surface text aligned under two
// different tenants always produces two distinct entities.
type Entity struct {
	ID            string    `json:"id"`             // Unique identifier (format: ent:type:uuid)
	TenantID      string    `json:"tenant_id"`      // Owning tenant
	Type          string    `json:"type"`           // Entity type (person, location, organization, ...)
	CanonicalName string    `json:"canonical_name"` // The first value that created the entity
	Aliases       []string  `json:"aliases,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Confidence of the entity itself (0.0-1.0). Auto-created entities start
	// at 1.0 because the creating value is their canonical name by definition.
	Confidence float64 `json:"confidence"`

	// Type-specific metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Embedding for semantic similarity matching. Nil when no embedding
	// backend was configured at alignment time.
	Embedding          []float32 `json:"embedding,omitempty"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`
}

// HasAlias reports whether the entity already carries the given alias
// (exact string comparison; normalization is the caller's concern).
func (e *Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if strings.EqualFold(a, alias) {
			return true
		}
	}
	return false
}

// EntityStats summarizes a tenant's entity and alignment counts.
type EntityStats struct {
	TotalEntities   int            `json:"total_entities"`
	TotalAlignments int            `json:"total_alignments"`
	EntitiesByType  map[string]int `json:"entities_by_type"`
}
