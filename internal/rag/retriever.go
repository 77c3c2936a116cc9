package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

var (
	// ErrEmptyIndex means the index returned no candidates at all.
	ErrEmptyIndex = errors.New("vector index is empty")
	// ErrNoRelevantContext means candidates existed but none scored above the floor.
	ErrNoRelevantContext = errors.New("no relevant context")
)

const (
	DefaultTopK     = 5
	DefaultMinScore = 0.1
)

type Retriever struct {
	embedder embedding.Embedder
	index    vectorstore.Index
	topK     int
	minScore float64
}

func NewRetriever(embedder embedding.Embedder, index vectorstore.Index, topK int, minScore float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, minScore: minScore}
}

// Retrieve embeds the query, asks the index for the top K candidates and
// keeps those scoring strictly above the floor, best first. When nothing
// survives it returns ErrEmptyIndex or ErrNoRelevantContext.
func (r *Retriever) Retrieve(ctx context.Context, queryText string) ([]models.ScoredChunk, error) {
	q := r.embedder.EmbedQuery(ctx, queryText)

	candidates, err := r.index.Query(ctx, q.Vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(candidates) == 0 {
		slog.Info("retrieval found no candidates", "reason", "empty_index")
		return nil, ErrEmptyIndex
	}

	kept := filterByScore(candidates, r.minScore)
	if len(kept) == 0 {
		slog.Info("retrieval found no candidates above floor",
			"reason", "below_floor",
			"candidates", len(candidates),
			"best_score", candidates[0].Score,
			"min_score", r.minScore,
		)
		return nil, ErrNoRelevantContext
	}

	slog.Debug("retrieved chunks", "kept", len(kept), "candidates", len(candidates))
	return kept, nil
}

// filterByScore drops candidates at or below the floor. NaN scores, which
// pgvector yields for zero vectors, never pass.
func filterByScore(candidates []models.ScoredChunk, floor float64) []models.ScoredChunk {
	kept := make([]models.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score > floor {
			kept = append(kept, c)
		}
	}
	return kept
}

// Chunks strips scores, keeping rank order.
func Chunks(scored []models.ScoredChunk) []models.TextChunk {
	chunks := make([]models.TextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks
}
