package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cognate/internal/resolve"
	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/internal/storage/sqlite"
	"github.com/scrypster/cognate/pkg/types"
)

// newTestEvaluator seeds a store with two event records whose venue fields
// are aligned to distinct place entities.
func newTestEvaluator(t *testing.T) (*Evaluator, storage.Store) {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	now := time.Now().UTC()

	entities := []struct{ id, name string }{
		{"ent:place:1", "Conference Center"},
		{"ent:place:2", "Airport"},
	}
	for _, e := range entities {
		require.NoError(t, store.CreateEntity(ctx, &types.Entity{
			ID: e.id, TenantID: "tenant-a", Type: "place",
			CanonicalName: e.name, Aliases: []string{e.name},
			Confidence: 1.0, CreatedAt: now, UpdatedAt: now,
		}))
	}

	records := []struct {
		key, venue, entityID string
		attendance           float64
	}{
		{"mem-1", "Conference Center", "ent:place:1", 450},
		{"mem-2", "Airport", "ent:place:2", 30},
	}
	for _, r := range records {
		require.NoError(t, store.PutRecord(ctx, &types.Record{
			TenantID: "tenant-a", Key: r.key,
			Value: map[string]interface{}{
				"venue":      map[string]interface{}{"name": r.venue},
				"attendance": r.attendance,
			},
			UpdatedAt: now,
		}))
		require.NoError(t, store.UpsertAlignment(ctx, &types.AlignmentRecord{
			TenantID: "tenant-a", MemoryKey: r.key, FieldPath: "venue.name",
			EntityID: r.entityID, OriginalValue: r.venue,
			Confidence: types.ConfidenceHigh, AlignedAt: now,
		}))
	}

	finder := resolve.NewFinder(store, nil)
	return NewEvaluator(finder, store, store), store
}

func TestApplyEntityFilter(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	records, err := evaluator.Apply(context.Background(), "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityFuzzy, Value: "conference center, riga", EntityType: "place"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mem-1", records[0].Key)
}

func TestApplyEntityFilterNoMatch(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	records, err := evaluator.Apply(context.Background(), "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityExact, Value: "Opera House", EntityType: "place"},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestApplyEntityAndScalarFilters(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	ctx := context.Background()

	// Entity filter narrows to mem-1, then the scalar filter must also
	// hold.
	records, err := evaluator.Apply(ctx, "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityExact, Value: "conference center", EntityType: "place"},
		{Path: "attendance", Operator: OpGreaterThan, Value: 100.0},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mem-1", records[0].Key)

	records, err = evaluator.Apply(ctx, "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityExact, Value: "conference center", EntityType: "place"},
		{Path: "attendance", Operator: OpLessThan, Value: 100.0},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestApplyScalarOnly(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	records, err := evaluator.Apply(context.Background(), "tenant-a", []*Filter{
		{Path: "attendance", Operator: OpLessThan, Value: 100.0},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mem-2", records[0].Key)
}

func TestApplyConflictingEntityFilters(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	// Two entity filters on the same path resolving to different entities
	// intersect to nothing.
	records, err := evaluator.Apply(context.Background(), "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityExact, Value: "Conference Center", EntityType: "place"},
		{Path: "venue.name", Operator: OpEntityExact, Value: "Airport", EntityType: "place"},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestApplyInvalidFilter(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	_, err := evaluator.Apply(context.Background(), "tenant-a", []*Filter{
		{Path: "venue.name", Operator: OpEntityFuzzy, Value: "x"},
	})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestApplyTenantIsolation(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)

	records, err := evaluator.Apply(context.Background(), "tenant-b", []*Filter{
		{Path: "venue.name", Operator: OpEntityFuzzy, Value: "Conference Center", EntityType: "place"},
	})
	require.NoError(t, err)
	assert.Empty(t, records)
}
