package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandFromSimilarity(t *testing.T) {
	tests := []struct {
		similarity float64
		want       ConfidenceBand
	}{
		{0.99, ConfidenceHigh},
		{0.96, ConfidenceHigh},
		{0.95, ConfidenceMedium},
		{0.86, ConfidenceMedium},
		{0.85, ConfidenceLow},
		{0.6, ConfidenceLow},
		{0, ConfidenceLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFromSimilarity(tt.similarity), "similarity %v", tt.similarity)
	}
}

func TestHasAlias(t *testing.T) {
	e := &Entity{Aliases: []string{"Conference Center", "the venue"}}

	assert.True(t, e.HasAlias("the venue"))
	assert.True(t, e.HasAlias("THE VENUE"))
	assert.False(t, e.HasAlias("airport"))
}
