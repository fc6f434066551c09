package recognition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFinder resolves values to canned entity ID sets.
type fakeFinder struct {
	ids map[string][]string
	err error
}

func (f *fakeFinder) FindMatchingEntityIDs(_ context.Context, value, _, _ string, _ float64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[value], nil
}

func TestCalculateConfidenceEntityAgreement(t *testing.T) {
	scorer := NewScorer(&fakeFinder{ids: map[string][]string{
		"Conference Center":      {"ent:place:1"},
		"conference center, riga": {"ent:place:1"},
		"J. Smith":               {"ent:person:1"},
		"John Smith":             {"ent:person:2"},
	}})

	candidate := map[string]interface{}{
		"venue":   map[string]interface{}{"name": "conference center, riga"},
		"speaker": "J. Smith",
	}
	stored := map[string]interface{}{
		"venue":   map[string]interface{}{"name": "Conference Center"},
		"speaker": "John Smith",
	}

	// Venue resolves to the same entity (1.0), speaker does not (0.0).
	score, err := scorer.CalculateConfidence(context.Background(), "tenant-a", candidate, stored, map[string]string{
		"venue.name": "place",
		"speaker":    "person",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestCalculateConfidenceTextFallback(t *testing.T) {
	scorer := NewScorer(nil)

	candidate := map[string]interface{}{"venue": "Conference Center"}
	stored := map[string]interface{}{"venue": "conference center"}

	score, err := scorer.CalculateConfidence(context.Background(), "tenant-a", candidate, stored, map[string]string{
		"venue": "place",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestCalculateConfidenceMissingField(t *testing.T) {
	scorer := NewScorer(nil)

	candidate := map[string]interface{}{"venue": "Conference Center"}
	stored := map[string]interface{}{}

	score, err := scorer.CalculateConfidence(context.Background(), "tenant-a", candidate, stored, map[string]string{
		"venue": "place",
	})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestCalculateConfidenceNoFields(t *testing.T) {
	scorer := NewScorer(nil)

	score, err := scorer.CalculateConfidence(context.Background(), "tenant-a", nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestCalculateConfidenceFinderErrorFallsBack(t *testing.T) {
	scorer := NewScorer(&fakeFinder{err: assert.AnError})

	candidate := map[string]interface{}{"venue": "Conference Center"}
	stored := map[string]interface{}{"venue": "conference center"}

	score, err := scorer.CalculateConfidence(context.Background(), "tenant-a", candidate, stored, map[string]string{
		"venue": "place",
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}
