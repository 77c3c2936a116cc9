package rag

import (
	"fmt"

	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

// DocumentChunker turns extracted document text into positioned chunks.
type DocumentChunker struct {
	windows chunker.Chunker
}

func NewDocumentChunker(opts chunker.ChunkOptions) (*DocumentChunker, error) {
	c, err := chunker.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}
	return &DocumentChunker{windows: c}, nil
}

// Chunk returns one TextChunk per non-empty window, positioned by emission
// order. Empty text yields no chunks.
func (c *DocumentChunker) Chunk(text, documentID string) ([]models.TextChunk, error) {
	windows, err := c.windows.Chunk(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.TextChunk, 0, len(windows))
	for _, w := range windows {
		if w.Content == "" {
			continue
		}
		chunks = append(chunks, models.NewTextChunk(documentID, len(chunks), w.Content))
	}
	return chunks, nil
}
