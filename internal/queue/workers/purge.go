package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docqa/internal/queue"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
)

// PurgeWorker retries vector deletions that failed during document delete.
type PurgeWorker struct {
	index vectorstore.Index
}

func NewPurgeWorker(index vectorstore.Index) *PurgeWorker {
	return &PurgeWorker{index: index}
}

func (w *PurgeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.VectorPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("empty document id: %w", asynq.SkipRetry)
	}

	if err := w.index.DeleteByDocument(ctx, payload.DocumentID); err != nil {
		return fmt.Errorf("purge vectors of %s: %w", payload.DocumentID, err)
	}

	slog.Info("vectors purged", "document_id", payload.DocumentID)
	return nil
}
