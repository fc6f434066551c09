package storage

import (
	"errors"
	"math"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// EntityMatch is one result of an embedding similarity search.
type EntityMatch struct {
	// ID is the matched entity's ID.
	ID string

	// Similarity is the cosine similarity to the query vector (0.0-1.0
	// for non-degenerate vectors; higher is closer).
	Similarity float64
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched dimensions or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
