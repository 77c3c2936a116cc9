package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nikhilbhutani/docqa/internal/app"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/queue"
	"github.com/nikhilbhutani/docqa/internal/queue/workers"
)

const concurrency = 4

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Addr == "" {
		slog.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := queue.NewServer(cfg.Redis, concurrency)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeVectorPurge, workers.NewPurgeWorker(a.Index))
	registry.Register(queue.TypeDocumentReindex, workers.NewReindexWorker(a.Documents))

	slog.Info("starting worker", "concurrency", concurrency, "vector_backend", cfg.VectorStore.Backend)
	// Run blocks until SIGINT or SIGTERM.
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
