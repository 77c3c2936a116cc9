package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/queue"
)

// Reindexer rebuilds a document's vectors from its stored file.
type Reindexer interface {
	Reindex(ctx context.Context, documentID string) (int, error)
}

type ReindexWorker struct {
	docs Reindexer
}

func NewReindexWorker(docs Reindexer) *ReindexWorker {
	return &ReindexWorker{docs: docs}
}

func (w *ReindexWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentReindexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	n, err := w.docs.Reindex(ctx, payload.DocumentID)
	if errors.Is(err, document.ErrNotFound) {
		slog.Warn("reindex skipped, document gone", "document_id", payload.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reindex %s: %w", payload.DocumentID, err)
	}

	slog.Info("document reindexed", "document_id", payload.DocumentID, "chunks", n)
	return nil
}
