package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
)

// Embedder turns queries and chunks into vectors of one fixed dimension.
// Provider failures never surface as errors: the affected item gets a zero
// vector and the failure is logged.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) models.VectorEmbedding
	EmbedChunks(ctx context.Context, chunks []models.TextChunk) []models.VectorEmbedding
	Dimension() int
}

// VectorCache stores query vectors between requests. *cache.Cache
// satisfies it.
type VectorCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type Service struct {
	gateway   llm.Gateway
	model     string
	dimension int
	cache     VectorCache
	cacheTTL  time.Duration
}

type Option func(*Service)

// WithQueryCache caches query vectors for ttl.
func WithQueryCache(c VectorCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil && ttl > 0 {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

func NewService(gw llm.Gateway, model string, dimension int, opts ...Option) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	s := &Service{gateway: gw, model: model, dimension: dimension}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Dimension() int { return s.dimension }

// Batch in groups of 100 for API limits.
const batchSize = 100

// EmbedQuery embeds text in query mode. The returned embedding carries the
// query sentinel instead of a chunk id.
func (s *Service) EmbedQuery(ctx context.Context, text string) models.VectorEmbedding {
	key := s.cacheKey(text)
	if s.cache != nil {
		var cached []float32
		if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached) == s.dimension {
			return models.NewVectorEmbedding(models.QueryChunkID, cached)
		}
	}

	vecs, err := s.embed(ctx, llm.ModeQuery, []string{text})
	if err != nil {
		slog.Error("query embedding failed, using zero vector", "error", err)
		return models.NewVectorEmbedding(models.QueryChunkID, s.zero())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, vecs[0], s.cacheTTL); err != nil {
			slog.Warn("failed to cache query embedding", "error", err)
		}
	}
	return models.NewVectorEmbedding(models.QueryChunkID, vecs[0])
}

// EmbedChunks embeds chunks in document mode, preserving input order. A
// failed batch is retried item by item so one bad chunk only costs itself.
func (s *Service) EmbedChunks(ctx context.Context, chunks []models.TextChunk) []models.VectorEmbedding {
	out := make([]models.VectorEmbedding, 0, len(chunks))

	for i := 0; i < len(chunks); i += batchSize {
		batch := chunks[i:min(i+batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}

		vecs, err := s.embed(ctx, llm.ModeDocument, texts)
		if err == nil {
			for j, c := range batch {
				out = append(out, models.NewVectorEmbedding(c.ID, vecs[j]))
			}
			continue
		}

		slog.Warn("embedding batch failed, retrying per chunk", "batch", i/batchSize, "size", len(batch), "error", err)
		for _, c := range batch {
			out = append(out, s.embedOne(ctx, c))
		}
	}

	return out
}

func (s *Service) embedOne(ctx context.Context, c models.TextChunk) models.VectorEmbedding {
	vecs, err := s.embed(ctx, llm.ModeDocument, []string{c.Text})
	if err != nil {
		slog.Error("chunk embedding failed, using zero vector",
			"chunk_id", c.ID,
			"document_id", c.DocumentID,
			"position", c.Position,
			"error", err,
		)
		return models.NewVectorEmbedding(c.ID, s.zero())
	}
	return models.NewVectorEmbedding(c.ID, vecs[0])
}

func (s *Service) embed(ctx context.Context, mode llm.EmbeddingMode, texts []string) ([][]float32, error) {
	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Model:      s.model,
		Mode:       mode,
		Input:      texts,
		Dimensions: s.dimension,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("embedding usage",
		"provider", resp.Provider,
		"model", resp.Model,
		"mode", mode,
		"inputs", len(texts),
		"tokens", resp.Tokens,
		"cost_usd", resp.CostUSD,
	)
	for i, v := range resp.Embeddings {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), s.dimension)
		}
	}
	return resp.Embeddings, nil
}

func (s *Service) zero() []float32 {
	return make([]float32, s.dimension)
}

func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:query:" + s.model + ":" + hex.EncodeToString(sum[:])
}

// IsZero reports whether v is the degraded all-zero vector.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
