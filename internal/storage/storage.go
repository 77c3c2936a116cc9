package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("object not found")

// Storage holds original uploaded files by name.
type Storage interface {
	Upload(ctx context.Context, name string, data io.Reader, contentType string) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// Location is recorded as the document's source.
	Location(name string) string
}
