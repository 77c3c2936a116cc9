package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/pkg/tokenizer"
)

// PgVectorStore keeps chunk vectors in the vector_embeddings table created
// by migrations/0001_vector_embeddings.sql.
type PgVectorStore struct {
	db        *pgxpool.Pool
	dimension int
}

func NewPgVectorStore(db *pgxpool.Pool, dimension int) *PgVectorStore {
	return &PgVectorStore{db: db, dimension: dimension}
}

func (s *PgVectorStore) Store(ctx context.Context, embedding models.VectorEmbedding, chunk models.TextChunk) error {
	return s.StoreBatch(ctx, []Entry{{Embedding: embedding, Chunk: chunk}})
}

func (s *PgVectorStore) StoreBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := e.validate(s.dimension); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO vector_embeddings (id, chunk_id, document_id, chunk_index, content, embedding, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET chunk_id = $2, document_id = $3, chunk_index = $4,
			     content = $5, embedding = $6, token_count = $7`,
			e.Embedding.ID, e.Chunk.ID, e.Chunk.DocumentID, e.Chunk.Position, e.Chunk.Text,
			pgvector.NewVector(e.Embedding.Vector), tokenizer.CountTokens(e.Chunk.Text),
		)
		if err != nil {
			return fmt.Errorf("store chunk %d of %s: %w", e.Chunk.Position, e.Chunk.DocumentID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorStore) Query(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if limit <= 0 {
		limit = 10
	}

	embedding := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx,
		`SELECT chunk_id, document_id, chunk_index, content,
		        1 - (embedding <=> $1) AS score
		 FROM vector_embeddings
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	results := []models.ScoredChunk{}
	for rows.Next() {
		var r models.ScoredChunk
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Position, &r.Chunk.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteByDocument removes every vector of a document in one statement,
// retrying transient failures for a few seconds.
func (s *PgVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	return retry(ctx, 5*time.Second, func() error {
		_, err := s.db.Exec(ctx, "DELETE FROM vector_embeddings WHERE document_id = $1", documentID)
		return err
	})
}

func (s *PgVectorStore) Get(ctx context.Context, chunkID string) (*models.TextChunk, error) {
	var c models.TextChunk
	err := s.db.QueryRow(ctx,
		`SELECT chunk_id, document_id, chunk_index, content
		 FROM vector_embeddings WHERE chunk_id = $1 LIMIT 1`, chunkID,
	).Scan(&c.ID, &c.DocumentID, &c.Position, &c.Text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", chunkID, err)
	}
	return &c, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM vector_embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

func (s *PgVectorStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "TRUNCATE vector_embeddings"); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}
