package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/models"
)

func storeChunk(t *testing.T, s Index, docID string, pos int, text string, vec []float32) models.TextChunk {
	t.Helper()
	chunk := models.NewTextChunk(docID, pos, text)
	require.NoError(t, s.Store(context.Background(), models.NewVectorEmbedding(chunk.ID, vec), chunk))
	return chunk
}

func TestMemoryStore_QueryEmptyIndex(t *testing.T) {
	s := NewMemoryStore(3)

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_StoredVectorIsTopResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	storeChunk(t, s, "doc-a", 0, "north", []float32{0, 1, 0})
	want := storeChunk(t, s, "doc-a", 1, "east", []float32{1, 0, 0})
	storeChunk(t, s, "doc-b", 0, "mixed", []float32{1, 1, 0})

	results, err := s.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, want, results[0].Chunk)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)
}

func TestMemoryStore_QueryHonoursLimit(t *testing.T) {
	s := NewMemoryStore(2)
	for i := 0; i < 4; i++ {
		storeChunk(t, s, "doc", i, "t", []float32{1, float32(i)})
	}

	results, err := s.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStore_StoreIsIdempotentByEmbeddingID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	chunk := models.NewTextChunk("doc", 0, "text")
	emb := models.NewVectorEmbedding(chunk.ID, []float32{1, 0})
	require.NoError(t, s.Store(ctx, emb, chunk))
	require.NoError(t, s.Store(ctx, emb, chunk))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_RejectsMismatches(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	chunk := models.NewTextChunk("doc", 0, "text")

	err := s.Store(ctx, models.NewVectorEmbedding("other", []float32{1, 0}), chunk)
	assert.ErrorIs(t, err, ErrChunkMismatch)

	err = s.Store(ctx, models.NewVectorEmbedding(chunk.ID, []float32{1, 0, 0}), chunk)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = s.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	gone := storeChunk(t, s, "doc-a", 0, "a0", []float32{1, 0})
	storeChunk(t, s, "doc-a", 1, "a1", []float32{0, 1})
	kept := storeChunk(t, s, "doc-b", 0, "b0", []float32{1, 1})

	require.NoError(t, s.DeleteByDocument(ctx, "doc-a"))

	results, err := s.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, kept.ID, results[0].Chunk.ID)

	got, err := s.Get(ctx, gone.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an unknown document is not an error.
	assert.NoError(t, s.DeleteByDocument(ctx, "missing"))
}

func TestMemoryStore_GetAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	chunk := storeChunk(t, s, "doc", 3, "hello", []float32{1, 0})

	got, err := s.Get(ctx, chunk.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chunk, *got)

	require.NoError(t, s.Clear(ctx))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_ZeroVectorScoresZero(t *testing.T) {
	s := NewMemoryStore(2)
	storeChunk(t, s, "doc", 0, "degraded", []float32{0, 0})

	results, err := s.Query(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score)
}

func TestPair(t *testing.T) {
	chunks := []models.TextChunk{models.NewTextChunk("d", 0, "a"), models.NewTextChunk("d", 1, "b")}

	entries, err := Pair([]models.VectorEmbedding{
		models.NewVectorEmbedding(chunks[0].ID, []float32{1}),
		models.NewVectorEmbedding(chunks[1].ID, []float32{2}),
	}, chunks)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = Pair(nil, chunks)
	assert.ErrorIs(t, err, ErrChunkMismatch)
}
