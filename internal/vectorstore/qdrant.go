package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/nikhilbhutani/docqa/internal/models"
)

var ErrQdrantUnreachable = errors.New("qdrant unreachable")

const qdrantBatchSize = 100

// QdrantStore keeps one point per embedding in a single collection. Chunk
// fields travel in the point payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore connects over gRPC, waits for the server to become healthy
// and makes sure the collection exists.
func NewQdrantStore(ctx context.Context, host string, port int, collection string, dimension int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection, dimension: dimension}

	if err := retry(ctx, 30*time.Second, func() error { return s.Health(ctx) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if result == nil || result.Title == "" {
		return errors.New("health check returned invalid response")
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Deletes filter by document_id and lookups by chunk_id.
	for _, field := range []string{"document_id", "chunk_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStore) Store(ctx context.Context, embedding models.VectorEmbedding, chunk models.TextChunk) error {
	return s.StoreBatch(ctx, []Entry{{Embedding: embedding, Chunk: chunk}})
}

func (s *QdrantStore) StoreBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := e.validate(s.dimension); err != nil {
			return err
		}
	}

	for i := 0; i < len(entries); i += qdrantBatchSize {
		end := min(i+qdrantBatchSize, len(entries))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, e := range entries[i:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(e.Embedding.ID),
				Vectors: qdrant.NewVectors(e.Embedding.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"chunk_id":    e.Chunk.ID,
					"document_id": e.Chunk.DocumentID,
					"position":    e.Chunk.Position,
					"text":        e.Chunk.Text,
				}),
			})
		}

		err := retry(ctx, 30*time.Second, func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Query returns Qdrant's cosine score, which is already a similarity.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if limit <= 0 {
		limit = 10
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]models.ScoredChunk, 0, len(points))
	for _, p := range points {
		results = append(results, models.ScoredChunk{
			Chunk: chunkFromPayload(p.Payload),
			Score: float64(p.Score),
		})
	}
	return results, nil
}

func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return retry(ctx, 5*time.Second, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
			}),
		})
		return err
	})
}

func (s *QdrantStore) Get(ctx context.Context, chunkID string) (*models.TextChunk, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("chunk_id", chunkID)},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", chunkID, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	c := chunkFromPayload(points[0].Payload)
	return &c, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return int(n), nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return s.ensureCollection(ctx)
}

func chunkFromPayload(payload map[string]*qdrant.Value) models.TextChunk {
	return models.TextChunk{
		ID:         payload["chunk_id"].GetStringValue(),
		DocumentID: payload["document_id"].GetStringValue(),
		Position:   int(payload["position"].GetIntegerValue()),
		Text:       payload["text"].GetStringValue(),
	}
}
