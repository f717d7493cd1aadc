package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a stored object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore persists generated documents such as invoice PDFs.
type ObjectStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}
