package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nikhilbhutani/docqa/internal/models"
)

// MemoryStore is an in-process index using brute-force cosine similarity.
// It backs tests and single-process development setups.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	seq       int
	entries   map[string]memoryEntry
}

type memoryEntry struct {
	Entry
	seq int
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Store(ctx context.Context, embedding models.VectorEmbedding, chunk models.TextChunk) error {
	return s.StoreBatch(ctx, []Entry{{Embedding: embedding, Chunk: chunk}})
}

func (s *MemoryStore) StoreBatch(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := e.validate(s.dimension); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.seq++
		vec := make([]float32, len(e.Embedding.Vector))
		copy(vec, e.Embedding.Vector)
		e.Embedding.Vector = vec
		s.entries[e.Embedding.ID] = memoryEntry{Entry: e, seq: s.seq}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, limit int) ([]models.ScoredChunk, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, ErrDimensionMismatch
	}

	s.mu.RLock()
	type scored struct {
		chunk models.TextChunk
		score float64
		seq   int
	}
	all := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, scored{chunk: e.Chunk, score: cosine(e.Embedding.Vector, vector), seq: e.seq})
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].seq < all[j].seq
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	results := make([]models.ScoredChunk, len(all))
	for i, sc := range all {
		results[i] = models.ScoredChunk{Chunk: sc.chunk, Score: sc.score}
	}
	return results, nil
}

func (s *MemoryStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.Chunk.DocumentID == documentID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, chunkID string) (*models.TextChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Chunk.ID == chunkID {
			c := e.Chunk
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// cosine returns the cosine similarity of a and b, or 0 when either has no
// magnitude. This equals 1 - cosine distance.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
