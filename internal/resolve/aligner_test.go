package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func newTestAligner(t *testing.T, store storage.Store) *Aligner {
	t.Helper()
	return NewAligner(store, NewFinder(store, nil), 0, true)
}

func TestAlignCreatesEntityForNewValue(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()

	results, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)

	rec := results["venue"]
	require.NotNil(t, rec)
	assert.True(t, strings.HasPrefix(rec.EntityID, "ent:place:"))
	assert.Equal(t, types.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, "Conference Center", rec.OriginalValue)

	entity, err := store.GetEntity(ctx, "tenant-a", rec.EntityID)
	require.NoError(t, err)
	assert.Equal(t, "Conference Center", entity.CanonicalName)
	assert.Equal(t, []string{"Conference Center"}, entity.Aliases)

	stored, err := store.GetAlignment(ctx, "tenant-a", "mem-1", "venue")
	require.NoError(t, err)
	assert.Equal(t, rec.EntityID, stored.EntityID)
}

func TestAlignMatchesExistingAndAccumulatesAlias(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()

	first, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)
	entityID := first["venue"].EntityID

	second, err := aligner.AlignEntityFields(ctx, "mem-2", []FieldSpec{
		{FieldName: "venue", Value: "conference center, riga", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)

	require.NotNil(t, second["venue"])
	assert.Equal(t, entityID, second["venue"].EntityID, "surface variant must resolve to the same entity")
	assert.Equal(t, types.ConfidenceMedium, second["venue"].Confidence)

	entity, err := store.GetEntity(ctx, "tenant-a", entityID)
	require.NoError(t, err)
	assert.Contains(t, entity.Aliases, "Conference Center")
	assert.Contains(t, entity.Aliases, "conference center, riga")
}

func TestAlignAutoCreateDisabled(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()

	results, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a", AutoCreate: boolPtr(false)})
	require.NoError(t, err)

	assert.Nil(t, results["venue"])
	_, err = store.GetAlignment(ctx, "tenant-a", "mem-1", "venue")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAlignEmbeddingFailureIsSwallowed(t *testing.T) {
	store := newTestStore(t)
	finder := NewFinder(store, &fakeEmbedder{err: errors.New("backend down")})
	aligner := NewAligner(store, finder, 0, true)
	ctx := context.Background()

	// No deterministic strategy matches, the embedding call fails, and the
	// field still aligns via auto-create.
	results, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.NotNil(t, results["venue"])

	entity, err := store.GetEntity(ctx, "tenant-a", results["venue"].EntityID)
	require.NoError(t, err)
	assert.Empty(t, entity.Embedding)
}

func TestAlignPerFieldThresholdOverride(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEntity(t, store, "ent:place:1", "tenant-a", "place", "Conference Center")
	require.NoError(t, store.UpdateEmbedding(ctx, "tenant-a", "ent:place:1", []float32{1, 0, 0}, "fake"))

	finder := NewFinder(store, &fakeEmbedder{vectors: map[string][]float32{
		"the meeting spot": {0.8, 0.6, 0},
	}})
	aligner := NewAligner(store, finder, 0.6, false)

	// Cosine similarity is 0.8: below the strict per-field threshold the
	// field stays unaligned, below the default it would have matched.
	results, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "the meeting spot", EntityType: "place", Threshold: floatPtr(0.9)},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)
	assert.Nil(t, results["venue"])

	results, err = aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "the meeting spot", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.NotNil(t, results["venue"])
	assert.Equal(t, "ent:place:1", results["venue"].EntityID)
	assert.Equal(t, types.ConfidenceLow, results["venue"].Confidence)
}

func TestAlignRequiresTenant(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)

	_, err := aligner.AlignEntityFields(context.Background(), "mem-1", nil, AlignOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestUnlinkEntity(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()

	_, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)

	require.NoError(t, aligner.UnlinkEntity(ctx, "tenant-a", "mem-1", "venue"))
	assert.ErrorIs(t, aligner.UnlinkEntity(ctx, "tenant-a", "mem-1", "venue"), storage.ErrNotFound)
}

func TestForceRealign(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()
	seedEntity(t, store, "ent:place:1", "tenant-a", "place", "Conference Center")
	seedEntity(t, store, "ent:place:2", "tenant-a", "place", "Airport")

	_, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "conference center", EntityType: "place"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)

	rec, err := aligner.ForceRealign(ctx, "tenant-a", "mem-1", "venue", "ent:place:2")
	require.NoError(t, err)
	assert.Equal(t, "ent:place:2", rec.EntityID)
	assert.Equal(t, types.ConfidenceHigh, rec.Confidence)
	assert.Equal(t, "conference center", rec.OriginalValue, "original value survives realignment")

	_, err = aligner.ForceRealign(ctx, "tenant-a", "mem-1", "venue", "ent:place:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityStats(t *testing.T) {
	store := newTestStore(t)
	aligner := newTestAligner(t, store)
	ctx := context.Background()

	_, err := aligner.AlignEntityFields(ctx, "mem-1", []FieldSpec{
		{FieldName: "venue", Value: "Conference Center", EntityType: "place"},
		{FieldName: "speaker", Value: "J. Smith", EntityType: "person"},
	}, AlignOptions{TenantID: "tenant-a"})
	require.NoError(t, err)

	stats, err := aligner.EntityStats(ctx, "tenant-a", "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntities)
	assert.Equal(t, 2, stats.TotalAlignments)
	assert.Equal(t, map[string]int{"place": 1, "person": 1}, stats.EntitiesByType)

	stats, err = aligner.EntityStats(ctx, "tenant-a", "place")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntities)
	assert.Equal(t, map[string]int{"place": 1}, stats.EntitiesByType)
}

func TestBackfillEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEntity(t, store, "ent:place:1", "tenant-a", "place", "Conference Center")
	seedEntity(t, store, "ent:place:2", "tenant-a", "place", "Airport")
	require.NoError(t, store.UpdateEmbedding(ctx, "tenant-a", "ent:place:2", []float32{0, 1, 0}, "fake"))

	noEmbedder := NewAligner(store, NewFinder(store, nil), 0, true)
	_, err := noEmbedder.BackfillEmbeddings(ctx, "tenant-a", "place")
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	aligner := NewAligner(store, NewFinder(store, &fakeEmbedder{vectors: map[string][]float32{
		"Conference Center": {1, 0, 0},
	}}), 0, true)

	updated, err := aligner.BackfillEmbeddings(ctx, "tenant-a", "place")
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "entities with vectors are skipped")

	entity, err := store.GetEntity(ctx, "tenant-a", "ent:place:1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, entity.Embedding)
}
