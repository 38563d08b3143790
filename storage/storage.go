package storage

import (
	"context"
	"io"
)

// Storage is a durable byte sink/source addressed by paths relative to a
// root location. Writers returned by Create must be closed before the
// written data becomes readable.
type Storage interface {
	Create(ctx context.Context, filepath string) (io.WriteCloser, error)
	Open(ctx context.Context, filepath string) (io.ReadCloser, error)
	Delete(ctx context.Context, filepath string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
