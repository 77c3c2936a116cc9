//go:build integration

package vectorstore

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/database"
)

// These tests clear the index they run against; point them at disposable
// services only.

func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, idx.Clear(ctx))
	results, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	storeChunk(t, idx, "doc-a", 0, "north", []float32{0, 1, 0})
	east := storeChunk(t, idx, "doc-a", 1, "east", []float32{1, 0, 0})
	storeChunk(t, idx, "doc-b", 0, "mixed", []float32{1, 1, 0})

	results, err = idx.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, east, results[0].Chunk)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.Greater(t, results[0].Score, results[1].Score)

	got, err := idx.Get(ctx, east.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, east, *got)

	missing, err := idx.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, idx.DeleteByDocument(ctx, "doc-a"))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Clear(ctx))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPgVectorStore_Integration(t *testing.T) {
	url := os.Getenv("DOCQA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOCQA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := database.NewPool(ctx, config.DatabaseConfig{URL: url, MaxConns: 4})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, database.RunMigrations(ctx, pool, "../../migrations"))

	exerciseIndex(t, NewPgVectorStore(pool, 3))
}

func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("DOCQA_TEST_QDRANT_HOST")
	if host == "" {
		t.Skip("DOCQA_TEST_QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("DOCQA_TEST_QDRANT_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	qs, err := NewQdrantStore(context.Background(), host, port, "docqa_test", 3)
	require.NoError(t, err)
	defer qs.Close()

	exerciseIndex(t, qs)
}
