package vectorstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retry runs op with exponential backoff until it succeeds, the context is
// done, or maxElapsed passes.
func retry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
