package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

type Pipeline interface {
	// Ingest chunks, embeds and stores a document's text. It returns the
	// number of chunks stored; the document is queryable once it returns.
	Ingest(ctx context.Context, documentID, text string) (int, error)
	// Reingest replaces a document's stored chunks with ones built from
	// text. The old chunks stay in place when embedding fails.
	Reingest(ctx context.Context, documentID, text string) (int, error)
	// Ask answers a question from the indexed chunks.
	Ask(ctx context.Context, question string) (*models.Response, error)
	// Retrieve returns the ranked chunks that would back an answer.
	Retrieve(ctx context.Context, question string) ([]models.ScoredChunk, error)
}

type Options struct {
	Chunking   chunker.ChunkOptions
	TopK       int
	MinScore   float64
	Generation GenerationOptions
}

type pipeline struct {
	chunker     *DocumentChunker
	embedder    embedding.Embedder
	index       vectorstore.Index
	retriever   *Retriever
	synthesizer *Synthesizer
}

func NewPipeline(index vectorstore.Index, embedder embedding.Embedder, gw llm.Gateway, opts Options) (Pipeline, error) {
	dc, err := NewDocumentChunker(opts.Chunking)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		chunker:     dc,
		embedder:    embedder,
		index:       index,
		retriever:   NewRetriever(embedder, index, opts.TopK, opts.MinScore),
		synthesizer: NewSynthesizer(gw, opts.Generation),
	}, nil
}

func (p *pipeline) Ingest(ctx context.Context, documentID, text string) (int, error) {
	entries, err := p.prepare(ctx, documentID, text)
	if err != nil || len(entries) == 0 {
		return 0, err
	}
	if err := p.index.StoreBatch(ctx, entries); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	logIndexed(documentID, entries)
	return len(entries), nil
}

// Reingest embeds text before touching the index, then swaps the document's
// old vectors for the new ones. The swap runs on a detached context so a
// cancelled caller cannot stop it between the purge and the store.
func (p *pipeline) Reingest(ctx context.Context, documentID, text string) (int, error) {
	entries, err := p.prepare(ctx, documentID, text)
	if err != nil {
		return 0, err
	}

	swap, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	if err := p.index.DeleteByDocument(swap, documentID); err != nil {
		return 0, fmt.Errorf("purge old vectors: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := p.index.StoreBatch(swap, entries); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	logIndexed(documentID, entries)
	return len(entries), nil
}

// prepare chunks and embeds text. It returns no entries for empty text.
func (p *pipeline) prepare(ctx context.Context, documentID, text string) ([]vectorstore.Entry, error) {
	chunks, err := p.chunker.Chunk(text, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("document produced no text to index", "document_id", documentID)
		return nil, nil
	}

	embeddings := p.embedder.EmbedChunks(ctx, chunks)

	// A cancelled request must not leave zero vectors behind.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}

	degraded := 0
	for _, e := range embeddings {
		if embedding.IsZero(e.Vector) {
			degraded++
		}
	}
	if degraded > 0 {
		slog.Warn("document indexed with zero vectors", "document_id", documentID, "chunks", len(chunks), "degraded", degraded)
	}

	return vectorstore.Pair(embeddings, chunks)
}

func logIndexed(documentID string, entries []vectorstore.Entry) {
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Chunk.Text
	}
	slog.Info("document indexed", "document_id", documentID, "chunks", len(entries), "tokens", tokenizer.CountAll(texts))
}

func (p *pipeline) Ask(ctx context.Context, question string) (*models.Response, error) {
	query := models.NewQuery(question)

	scored, err := p.retriever.Retrieve(ctx, question)
	switch {
	case errors.Is(err, ErrEmptyIndex), errors.Is(err, ErrNoRelevantContext):
		return p.synthesizer.NoInfo(query), nil
	case err != nil:
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	return p.synthesizer.Answer(ctx, query, Chunks(scored)), nil
}

func (p *pipeline) Retrieve(ctx context.Context, question string) ([]models.ScoredChunk, error) {
	return p.retriever.Retrieve(ctx, question)
}
