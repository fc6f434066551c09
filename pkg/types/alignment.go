package types

import "time"

// ConfidenceBand is the presentation label attached to an alignment record.
// The raw similarity float is the source of truth during matching; the band
// records how the match was made.
type ConfidenceBand string

const (
	// ConfidenceHigh is assigned to exact and alias matches, and to
	// embedding matches with similarity above 0.95.
	ConfidenceHigh ConfidenceBand = "high"

	// ConfidenceMedium is assigned to normalized text-similarity matches,
	// and to embedding matches with similarity above 0.85.
	ConfidenceMedium ConfidenceBand = "medium"

	// ConfidenceLow is assigned to embedding matches that cleared the
	// configured threshold but no higher band.
	ConfidenceLow ConfidenceBand = "low"
)

// BandFromSimilarity maps a raw embedding cosine similarity to a band.
func BandFromSimilarity(similarity float64) ConfidenceBand {
	switch {
	case similarity > 0.95:
		return ConfidenceHigh
	case similarity > 0.85:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// AlignmentRecord is the persisted mapping from one field of one stored
// record to one entity. Unique per (tenant_id, memory_key, field_path):
// re-alignment overwrites, never duplicates.
type AlignmentRecord struct {
	TenantID      string         `json:"tenant_id"`
	MemoryKey     string         `json:"memory_key"`
	FieldPath     string         `json:"field_path"`
	EntityID      string         `json:"entity_id"`
	OriginalValue string         `json:"original_value"`
	Confidence    ConfidenceBand `json:"confidence"`
	AlignedAt     time.Time      `json:"aligned_at"`
}
