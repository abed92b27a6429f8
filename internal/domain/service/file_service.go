package service

import (
	"context"
	"io"
)

// BlobStore keeps attachment bytes. Keys are opaque to callers.
type BlobStore interface {
	Put(ctx context.Context, file io.Reader, contentType, folder, filename string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL returns a link clients may use to fetch the object, or "" when
	// downloads must go through the API.
	URL(key string) string
	Close() error
}
