package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver copies closed position history to cold storage.
type Archiver interface {
	ArchiveClosed(ctx context.Context, day time.Time) (int64, error)
}
