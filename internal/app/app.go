package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docqa/internal/cache"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/database"
	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/queue"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/session"
	"github.com/nikhilbhutani/docqa/internal/storage"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

// App holds every component bound to the backends the config selects.
type App struct {
	Config    *config.Config
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Qdrant    *vectorstore.QdrantStore
	Queue     *queue.Client
	Gateway   llm.Gateway
	Embedder  embedding.Embedder
	Index     vectorstore.Index
	Pipeline  rag.Pipeline
	Sessions  *session.Service
	Documents *document.Service

	closers []func()
}

// New connects to the configured backends and wires the services. Close
// releases whatever was opened, also when New fails halfway.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { rdb.Close() })

		a.Queue = queue.NewClient(cfg.Redis)
		a.closers = append(a.closers, func() { a.Queue.Close() })
	}

	a.Gateway = llm.NewGateway(cfg.LLM, cfg.Embedding.Provider)

	var embedOpts []embedding.Option
	if a.Redis != nil {
		embedOpts = append(embedOpts, embedding.WithQueryCache(cache.NewCache(a.Redis, "docqa:"), cfg.Embedding.CacheTTL))
	}
	a.Embedder = embedding.NewService(a.Gateway, cfg.Embedding.Model, cfg.Embedding.Dimension, embedOpts...)

	if a.Index, err = a.openIndex(ctx); err != nil {
		return nil, err
	}

	a.Pipeline, err = rag.NewPipeline(a.Index, a.Embedder, a.Gateway, rag.Options{
		Chunking: chunker.ChunkOptions{ChunkSize: cfg.RAG.ChunkSize, ChunkOverlap: cfg.RAG.ChunkOverlap},
		TopK:     cfg.RAG.TopK,
		MinScore: cfg.RAG.MinScore,
		Generation: rag.GenerationOptions{
			Model:       cfg.LLM.DefaultModel,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
			MaxTokens:   cfg.LLM.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, err
	}

	sessionStore, err := a.openSessionStore()
	if err != nil {
		return nil, err
	}
	a.Sessions = session.NewService(sessionStore)

	blobs, err := a.openStorage()
	if err != nil {
		return nil, err
	}
	registry, err := document.OpenRegistry(cfg.Upload.MetadataDir)
	if err != nil {
		return nil, err
	}
	docOpts := document.Options{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxSize:           cfg.Upload.MaxContentLength,
	}
	if a.Queue != nil {
		docOpts.Purger = a.Queue
	}
	a.Documents = document.NewService(blobs, registry, a.Pipeline, a.Index, docOpts)

	slog.Info("components ready",
		"vector_backend", cfg.VectorStore.Backend,
		"session_backend", cfg.Session.Backend,
		"storage_backend", cfg.Storage.Backend,
		"llm_provider", cfg.LLM.DefaultProvider,
		"embedding_provider", cfg.Embedding.Provider,
		"redis", a.Redis != nil,
	)
	return a, nil
}

func (a *App) openIndex(ctx context.Context) (vectorstore.Index, error) {
	cfg := a.Config
	switch cfg.VectorStore.Backend {
	case "pgvector":
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return vectorstore.NewPgVectorStore(db, cfg.Embedding.Dimension), nil
	case "qdrant":
		qs, err := vectorstore.NewQdrantStore(ctx, cfg.VectorStore.QdrantHost, cfg.VectorStore.QdrantPort,
			cfg.VectorStore.Collection, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		a.Qdrant = qs
		a.closers = append(a.closers, func() { qs.Close() })
		return qs, nil
	default:
		slog.Warn("using in-memory vector index, vectors are lost on restart")
		return vectorstore.NewMemoryStore(cfg.Embedding.Dimension), nil
	}
}

func (a *App) openSessionStore() (session.Store, error) {
	if a.Config.Session.Backend == "redis" {
		return session.NewRedisStore(a.Redis, a.Config.Session.TTL), nil
	}
	return session.NewFileStore(a.Config.Session.Dir)
}

func (a *App) openStorage() (storage.Storage, error) {
	cfg := a.Config.Storage
	if cfg.Backend == "supabase" {
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	}
	return storage.NewLocalStorage(a.Config.Upload.Dir)
}

// Checks returns the readiness probes of the connected backends.
func (a *App) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.DB != nil {
		checks["database"] = a.DB.Ping
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	if a.Qdrant != nil {
		checks["qdrant"] = a.Qdrant.Health
	}
	return checks
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
