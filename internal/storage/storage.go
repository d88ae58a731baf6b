package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore holds parquet datasets read by the DuckDB runner and the result
// archives written after a run.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects under prefix ordered by key. Keys are relative
	// to the store, the same form Get accepts.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
