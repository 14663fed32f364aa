package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Stat, Open and OpenRange when no object exists
// under the given key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored blob without opening it. ETag is a stable
// content fingerprint suitable for HTTP caching headers.
type ObjectInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

type Store interface {
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Put(ctx context.Context, key string, contentType string, data []byte) (int64, error)
	PutStream(ctx context.Context, key string, contentType string, reader io.Reader, size int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange opens [start, end] (inclusive). If end is negative, it reads to EOF.
	OpenRange(ctx context.Context, key string, start int64, end int64) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
