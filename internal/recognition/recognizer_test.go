package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cognate/internal/llm"
	"github.com/scrypster/cognate/internal/resolve"
	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/internal/storage/sqlite"
	"github.com/scrypster/cognate/pkg/types"
)

// fakeDisambiguator returns a fixed verdict and records whether it was
// consulted.
type fakeDisambiguator struct {
	verdict *llm.Verdict
	err     error
	called  bool
}

func (f *fakeDisambiguator) Disambiguate(_ context.Context, _ llm.DisambiguationRequest) (*llm.Verdict, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

// newRecognizerFixture seeds one stored event whose venue and speaker are
// aligned, plus the entities themselves, and returns a recognizer wired
// with the given disambiguator.
func newRecognizerFixture(t *testing.T, disambiguator llm.Disambiguator) (*Recognizer, storage.Store) {
	return newRecognizerFixtureWithThreshold(t, disambiguator, 0)
}

func newRecognizerFixtureWithThreshold(t *testing.T, disambiguator llm.Disambiguator, threshold float64) (*Recognizer, storage.Store) {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	now := time.Now().UTC()

	entities := []struct{ id, entityType, name string }{
		{"ent:place:1", "place", "Conference Center"},
		{"ent:person:1", "person", "J. Smith"},
	}
	for _, e := range entities {
		require.NoError(t, store.CreateEntity(ctx, &types.Entity{
			ID: e.id, TenantID: "tenant-a", Type: e.entityType,
			CanonicalName: e.name, Aliases: []string{e.name},
			Confidence: 1.0, CreatedAt: now, UpdatedAt: now,
		}))
	}

	require.NoError(t, store.PutRecord(ctx, &types.Record{
		TenantID: "tenant-a", Key: "mem-1",
		Value: map[string]interface{}{
			"venue":   "Conference Center",
			"speaker": "J. Smith",
			"title":   "Tech Conference 2026",
		},
		Tags:      []string{"event"},
		UpdatedAt: now,
	}))
	for path, entityID := range map[string]string{"venue": "ent:place:1", "speaker": "ent:person:1"} {
		require.NoError(t, store.UpsertAlignment(ctx, &types.AlignmentRecord{
			TenantID: "tenant-a", MemoryKey: "mem-1", FieldPath: path,
			EntityID: entityID, Confidence: types.ConfidenceHigh, AlignedAt: now,
		}))
	}

	finder := resolveFinder(store)
	scorer := NewScorer(finder)
	return NewRecognizer(store, scorer, finder, disambiguator, threshold), store
}

func TestRecognizeClearMatchSkipsLLM(t *testing.T) {
	arbiter := &fakeDisambiguator{verdict: &llm.Verdict{IsMatch: false}}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	// Both entity fields resolve to the stored entities: score 1.0, above
	// the upper edge of the ambiguous zone.
	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "conference center",
		"speaker": "J. Smith",
	}, "tenant-a", RecognizeOptions{
		Entities: map[string]string{"venue": "place", "speaker": "person"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsMatch)
	assert.Equal(t, "mem-1", result.MatchingKey)
	assert.Equal(t, "Tech Conference 2026", result.MatchingData["title"])
	assert.Equal(t, 1.0, result.Confidence)
	assert.False(t, result.UsedLLM)
	assert.False(t, arbiter.called)
}

func TestRecognizeClearRejectSkipsLLM(t *testing.T) {
	arbiter := &fakeDisambiguator{verdict: &llm.Verdict{IsMatch: true}}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	// Venue matches, speaker does not: score 0.5, below the lower edge of
	// the default zone [0.64, 0.86).
	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities: map[string]string{"venue": "place", "speaker": "person"},
	})
	require.NoError(t, err)

	assert.False(t, result.IsMatch)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
	assert.False(t, result.UsedLLM)
	assert.False(t, arbiter.called)
}

func TestRecognizeAmbiguousEscalates(t *testing.T) {
	arbiter := &fakeDisambiguator{verdict: &llm.Verdict{
		IsMatch:            true,
		AdjustedConfidence: 0.9,
		Explanation:        "same venue and speaker set",
	}}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	// Score 0.5 sits inside a widened zone, forcing escalation.
	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities:      map[string]string{"venue": "place", "speaker": "person"},
		LLMLowerBound: floatPtr(0.4),
	})
	require.NoError(t, err)

	assert.True(t, arbiter.called)
	assert.True(t, result.UsedLLM)
	assert.True(t, result.IsMatch)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, "mem-1", result.MatchingKey)
	assert.Equal(t, "same venue and speaker set", result.Explanation)
}

func TestRecognizeScoreAtLowerBoundEscalates(t *testing.T) {
	arbiter := &fakeDisambiguator{verdict: &llm.Verdict{IsMatch: false, AdjustedConfidence: 0.3}}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	// The zone is inclusive at its lower edge: a score exactly on the
	// bound still escalates.
	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities:      map[string]string{"venue": "place", "speaker": "person"},
		LLMLowerBound: floatPtr(0.5),
	})
	require.NoError(t, err)
	assert.True(t, arbiter.called)
	assert.False(t, result.IsMatch)
}

func TestRecognizeLLMFailureIsDecisionNotError(t *testing.T) {
	arbiter := &fakeDisambiguator{err: llm.ErrUpstream}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities:      map[string]string{"venue": "place", "speaker": "person"},
		LLMLowerBound: floatPtr(0.4),
	})
	require.NoError(t, err)

	assert.False(t, result.IsMatch)
	assert.Zero(t, result.Confidence)
	assert.True(t, result.UsedLLM)
	assert.Contains(t, result.Explanation, "disambiguation failed")
}

func TestRecognizeAmbiguousWithoutDisambiguator(t *testing.T) {
	recognizer, _ := newRecognizerFixture(t, nil)

	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities:      map[string]string{"venue": "place", "speaker": "person"},
		LLMLowerBound: floatPtr(0.4),
	})
	require.NoError(t, err)

	assert.False(t, result.IsMatch)
	assert.False(t, result.UsedLLM)
	assert.Contains(t, result.Explanation, "no disambiguator")
}

func TestRecognizeEmptyShortlist(t *testing.T) {
	arbiter := &fakeDisambiguator{}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue": "Opera House",
	}, "tenant-a", RecognizeOptions{
		Entities: map[string]string{"venue": "place"},
	})
	require.NoError(t, err)

	assert.False(t, result.IsMatch)
	assert.Zero(t, result.Confidence)
	assert.False(t, arbiter.called)
}

func TestRecognizeShortlistByTags(t *testing.T) {
	arbiter := &fakeDisambiguator{}
	recognizer, _ := newRecognizerFixture(t, arbiter)

	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "J. Smith",
	}, "tenant-a", RecognizeOptions{
		Entities: map[string]string{"venue": "place", "speaker": "person"},
		Tags:     []string{"event"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsMatch)
}

func TestRecognizeConstructorThreshold(t *testing.T) {
	arbiter := &fakeDisambiguator{}
	// Default threshold 0.30: the zone's upper edge is 0.41, so a score of
	// 0.5 (venue matches, speaker does not) accepts without escalation.
	recognizer, _ := newRecognizerFixtureWithThreshold(t, arbiter, 0.30)

	result, err := recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities: map[string]string{"venue": "place", "speaker": "person"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsMatch)
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
	assert.False(t, result.UsedLLM)
	assert.False(t, arbiter.called)

	// Per-call threshold still overrides the constructor default.
	result, err = recognizer.Recognize(context.Background(), map[string]interface{}{
		"venue":   "Conference Center",
		"speaker": "Someone Else Entirely",
	}, "tenant-a", RecognizeOptions{
		Entities:  map[string]string{"venue": "place", "speaker": "person"},
		Threshold: 0.75,
	})
	require.NoError(t, err)
	assert.False(t, result.IsMatch)
}

func TestRecognizeRequiresTenant(t *testing.T) {
	recognizer, _ := newRecognizerFixture(t, nil)

	_, err := recognizer.Recognize(context.Background(), nil, "", RecognizeOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func floatPtr(f float64) *float64 { return &f }

func resolveFinder(store storage.Store) EntityIDFinder {
	return resolve.NewFinder(store, nil)
}
