// Package recognition implements duplicate detection for candidate memory
// records: shortlist, score, and for the ambiguous band escalate to an
// LLM arbiter.
package recognition

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/cognate/internal/normalize"
	"github.com/scrypster/cognate/internal/query"
)

// EntityIDFinder resolves a raw value to entity IDs. Satisfied by
// resolve.Finder.
type EntityIDFinder interface {
	FindMatchingEntityIDs(ctx context.Context, value, entityType, tenantID string, threshold float64) ([]string, error)
}

// Scorer computes field-level match confidence between a candidate record
// and a stored one. With a finder configured, two values agree when their
// resolved entity ID sets intersect; without one, a normalized text ratio
// stands in.
type Scorer struct {
	finder EntityIDFinder // nil enables the text-ratio fallback
}

// NewScorer creates a scorer. finder may be nil.
func NewScorer(finder EntityIDFinder) *Scorer {
	return &Scorer{finder: finder}
}

// CalculateConfidence scores candidate against stored over the given entity
// fields (field path -> entity type) and returns the unweighted average of
// the per-field scores. A field absent from either side scores 0. Entity
// resolution failures on a field degrade that field to the text ratio.
func (s *Scorer) CalculateConfidence(ctx context.Context, tenantID string, candidate, stored map[string]interface{}, entityFields map[string]string) (float64, error) {
	if len(entityFields) == 0 {
		return 0, nil
	}

	total := 0.0
	for path, entityType := range entityFields {
		score, err := s.scoreField(ctx, tenantID, candidate, stored, path, entityType)
		if err != nil {
			return 0, err
		}
		total += score
	}
	return total / float64(len(entityFields)), nil
}

func (s *Scorer) scoreField(ctx context.Context, tenantID string, candidate, stored map[string]interface{}, path, entityType string) (float64, error) {
	cv, err := stringAtPath(candidate, path)
	if err != nil {
		return 0, err
	}
	sv, err := stringAtPath(stored, path)
	if err != nil {
		return 0, err
	}
	if cv == "" || sv == "" {
		return 0, nil
	}

	if s.finder != nil {
		candidateIDs, errA := s.finder.FindMatchingEntityIDs(ctx, cv, entityType, tenantID, 0)
		storedIDs, errB := s.finder.FindMatchingEntityIDs(ctx, sv, entityType, tenantID, 0)
		if errA == nil && errB == nil {
			if intersects(candidateIDs, storedIDs) {
				return 1.0, nil
			}
			return 0.0, nil
		}
		log.Printf("scorer: entity resolution failed for field %q, falling back to text ratio: %v", path, firstErr(errA, errB))
	}

	return normalize.Ratio(cv, sv), nil
}

func stringAtPath(obj map[string]interface{}, path string) (string, error) {
	value, err := query.GetValueByPath(obj, path)
	if err != nil {
		return "", err
	}
	if value == nil {
		return "", nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", value), nil
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if set[id] {
			return true
		}
	}
	return false
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
