package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file. Content is only held while the upload is
// being processed; afterwards the vector index is the source of chunk text.
type Document struct {
	ID        string            `json:"id"`
	Filename  string            `json:"filename"`
	Content   []byte            `json:"-"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

// Metadata keys recorded for every uploaded document.
const (
	MetaSource           = "source"
	MetaCreatedAt        = "created_at"
	MetaOriginalFilename = "original_filename"
)

// TextChunk is a positioned window of a document's extracted text.
type TextChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Position   int    `json:"position"`
	Text       string `json:"text"`
}

func NewTextChunk(documentID string, position int, text string) TextChunk {
	return TextChunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Position:   position,
		Text:       text,
	}
}

// QueryChunkID marks an embedding that belongs to a query rather than a
// stored chunk.
const QueryChunkID = "query"

// VectorEmbedding pairs a vector with the chunk it was computed from.
type VectorEmbedding struct {
	ID      string    `json:"id"`
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}

func NewVectorEmbedding(chunkID string, vector []float32) VectorEmbedding {
	return VectorEmbedding{
		ID:      uuid.NewString(),
		ChunkID: chunkID,
		Vector:  vector,
	}
}

// ScoredChunk is a chunk returned by a similarity query. Higher scores are
// more similar.
type ScoredChunk struct {
	Chunk TextChunk `json:"chunk"`
	Score float64   `json:"score"`
}

type Query struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Embedding *VectorEmbedding `json:"-"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewQuery(text string) *Query {
	return &Query{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now(),
	}
}

type Response struct {
	ID         string      `json:"id"`
	QueryID    string      `json:"query_id"`
	Content    string      `json:"content"`
	Sources    []TextChunk `json:"sources"`
	Confidence float64     `json:"confidence"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewResponse(queryID, content string, sources []TextChunk, confidence float64) *Response {
	if sources == nil {
		sources = []TextChunk{}
	}
	return &Response{
		ID:         uuid.NewString(),
		QueryID:    queryID,
		Content:    content,
		Sources:    sources,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}
