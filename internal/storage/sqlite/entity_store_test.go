package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cognate/internal/storage"
	"github.com/scrypster/cognate/pkg/types"
)

func testEntity(id, tenantID, name string) *types.Entity {
	now := time.Now().UTC()
	return &types.Entity{
		ID:            id,
		TenantID:      tenantID,
		Type:          "place",
		CanonicalName: name,
		Aliases:       []string{name},
		Confidence:    1.0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestEntityCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := testEntity("ent:place:1", "tenant-a", "Conference Center")
	entity.Metadata = map[string]interface{}{"city": "Riga"}
	require.NoError(t, store.CreateEntity(ctx, entity))

	got, err := store.GetEntity(ctx, "tenant-a", "ent:place:1")
	require.NoError(t, err)
	assert.Equal(t, "Conference Center", got.CanonicalName)
	assert.Equal(t, []string{"Conference Center"}, got.Aliases)
	assert.Equal(t, "Riga", got.Metadata["city"])
}

func TestEntityGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetEntity(context.Background(), "tenant-a", "ent:place:missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:1", "tenant-a", "Conference Center")))

	_, err := store.GetEntity(ctx, "tenant-b", "ent:place:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entities, err := store.ListEntities(ctx, "tenant-b", "place")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestAppendAlias(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:1", "tenant-a", "Conference Center")))

	require.NoError(t, store.AppendAlias(ctx, "tenant-a", "ent:place:1", "conference center, riga"))

	got, err := store.GetEntity(ctx, "tenant-a", "ent:place:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Conference Center", "conference center, riga"}, got.Aliases)
}

func TestAppendAliasIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:1", "tenant-a", "Conference Center")))

	require.NoError(t, store.AppendAlias(ctx, "tenant-a", "ent:place:1", "the venue"))
	require.NoError(t, store.AppendAlias(ctx, "tenant-a", "ent:place:1", "the venue"))

	got, err := store.GetEntity(ctx, "tenant-a", "ent:place:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Conference Center", "the venue"}, got.Aliases)
}

func TestAppendAliasNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendAlias(context.Background(), "tenant-a", "ent:place:missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateEmbeddingAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:1", "tenant-a", "Conference Center")))
	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:2", "tenant-a", "Airport")))

	require.NoError(t, store.UpdateEmbedding(ctx, "tenant-a", "ent:place:1", []float32{1, 0, 0}, "test-model"))
	require.NoError(t, store.UpdateEmbedding(ctx, "tenant-a", "ent:place:2", []float32{0, 1, 0}, "test-model"))

	matches, err := store.SearchByEmbedding(ctx, "tenant-a", "place", []float32{0.9, 0.1, 0}, 0.6, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ent:place:1", matches[0].ID)
	assert.Greater(t, matches[0].Similarity, 0.9)
}

func TestCountEntitiesByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEntity(ctx, testEntity("ent:place:1", "tenant-a", "Conference Center")))
	person := testEntity("ent:person:1", "tenant-a", "J. Smith")
	person.Type = "person"
	require.NoError(t, store.CreateEntity(ctx, person))

	counts, err := store.CountEntitiesByType(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"place": 1, "person": 1}, counts)
}
