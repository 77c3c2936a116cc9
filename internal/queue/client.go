package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docqa/internal/config"
)

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueVectorPurge schedules deletion of a document's vectors. Only one
// pending purge per document is kept.
func (c *Client) EnqueueVectorPurge(ctx context.Context, documentID string) error {
	return c.enqueue(ctx, TypeVectorPurge, VectorPurgePayload{DocumentID: documentID},
		asynq.TaskID("purge:"+documentID),
		asynq.MaxRetry(10),
		asynq.Timeout(time.Minute),
	)
}

func (c *Client) EnqueueDocumentReindex(ctx context.Context, documentID string) error {
	return c.enqueue(ctx, TypeDocumentReindex, DocumentReindexPayload{DocumentID: documentID},
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
