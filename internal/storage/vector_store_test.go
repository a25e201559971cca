package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	v := Vector{ID: "quran_1_1", Values: []float32{1, 0}, Metadata: map[string]any{"type": "quran"}}
	n, err := store.Upsert(ctx, []Vector{v})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v.Values = []float32{0, 1}
	_, err = store.Upsert(ctx, []Vector{v})
	require.NoError(t, err)

	stats, err := store.DescribeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalVectorCount)

	got, err := store.Fetch(ctx, []string{"quran_1_1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0, 1}, got["quran_1_1"].Values)
}

func TestMemoryStore_RejectsWrongDimension(t *testing.T) {
	store := NewMemoryStore(3)
	_, err := store.Upsert(context.Background(), []Vector{{ID: "a", Values: []float32{1}}})
	assert.Error(t, err)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	_, err := store.Upsert(ctx, []Vector{
		{ID: "a", Values: []float32{1}},
		{ID: "b", Values: []float32{1}},
		{ID: "c", Values: []float32{1}},
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, DeleteRequest{IDs: []string{"a"}}))
	stats, _ := store.DescribeStats(ctx)
	assert.Equal(t, int64(2), stats.TotalVectorCount)

	assert.ErrorIs(t, store.Delete(ctx, DeleteRequest{}), ErrNoIDs)

	require.NoError(t, store.Delete(ctx, DeleteRequest{All: true}))
	stats, _ = store.DescribeStats(ctx)
	assert.Equal(t, int64(0), stats.TotalVectorCount)
}

func TestMemoryStore_QueryRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	_, err := store.Upsert(ctx, []Vector{
		{ID: "q1", Values: []float32{1, 0}, Metadata: map[string]any{"type": "quran"}},
		{ID: "q2", Values: []float32{0.7, 0.7}, Metadata: map[string]any{"type": "quran"}},
		{ID: "h1", Values: []float32{1, 0.1}, Metadata: map[string]any{"type": "hadith"}},
	})
	require.NoError(t, err)

	matches, err := store.Query(ctx, QueryRequest{Vector: []float32{1, 0}, TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "q1", matches[0].ID)
	assert.Equal(t, "h1", matches[1].ID)

	matches, err = store.Query(ctx, QueryRequest{Vector: []float32{1, 0}, TopK: 5, Filter: map[string]any{"type": "quran"}})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "quran", m.Metadata["type"])
	}

	_, err = store.Query(ctx, QueryRequest{})
	assert.Error(t, err)
}

func TestNewVectorStore_Unknown(t *testing.T) {
	_, err := NewVectorStore(context.Background(), "weaviate", PineconeConfig{}, QdrantConfig{}, 768)
	assert.Error(t, err)

	s, err := NewVectorStore(context.Background(), "memory", PineconeConfig{}, QdrantConfig{}, 768)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}
