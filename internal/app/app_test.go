package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

func localConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		LLM:         config.LLMConfig{DefaultProvider: "openai", DefaultModel: "gpt-4o-mini"},
		Embedding:   config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimension: 4},
		RAG:         config.RAGConfig{ChunkSize: 100, ChunkOverlap: 10, TopK: 5, MinScore: 0.1},
		VectorStore: config.VectorStoreConfig{Backend: "memory"},
		Session:     config.SessionConfig{Backend: "file", Dir: filepath.Join(dir, "sessions")},
		Storage:     config.StorageConfig{Backend: "local"},
		Upload: config.UploadConfig{
			Dir:               filepath.Join(dir, "uploads"),
			MetadataDir:       filepath.Join(dir, "data"),
			AllowedExtensions: []string{"pdf"},
		},
	}
}

func TestNew_LocalBackends(t *testing.T) {
	a, err := New(context.Background(), localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &vectorstore.MemoryStore{}, a.Index)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Queue)
	assert.Empty(t, a.Checks())
	assert.NotNil(t, a.Sessions)
	assert.NotNil(t, a.Documents)
	assert.DirExists(t, a.Config.Session.Dir)
	assert.DirExists(t, a.Config.Upload.Dir)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidChunking)
}
