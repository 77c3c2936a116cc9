package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhilbhutani/docqa/internal/models"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrChunkMismatch     = errors.New("embedding does not belong to chunk")
)

// Entry is one stored vector together with the chunk it embeds.
type Entry struct {
	Embedding models.VectorEmbedding
	Chunk     models.TextChunk
}

// Index persists chunk vectors and answers nearest-neighbour queries.
// Scores are similarities: higher means closer. Entries are keyed by
// embedding id, so storing the same id again overwrites it.
type Index interface {
	Store(ctx context.Context, embedding models.VectorEmbedding, chunk models.TextChunk) error
	StoreBatch(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Get(ctx context.Context, chunkID string) (*models.TextChunk, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// Pair zips embeddings with the chunks they were computed from, checking
// that every embedding references its chunk.
func Pair(embeddings []models.VectorEmbedding, chunks []models.TextChunk) ([]Entry, error) {
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: %d embeddings for %d chunks", ErrChunkMismatch, len(embeddings), len(chunks))
	}
	entries := make([]Entry, len(chunks))
	for i := range chunks {
		entries[i] = Entry{Embedding: embeddings[i], Chunk: chunks[i]}
		if err := entries[i].validate(0); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// validate checks chunk pairing and, when dimension is positive, vector size.
func (e Entry) validate(dimension int) error {
	if e.Embedding.ChunkID != e.Chunk.ID {
		return fmt.Errorf("%w: embedding %s references %s, chunk is %s",
			ErrChunkMismatch, e.Embedding.ID, e.Embedding.ChunkID, e.Chunk.ID)
	}
	if dimension > 0 && len(e.Embedding.Vector) != dimension {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(e.Embedding.Vector), dimension)
	}
	return nil
}
