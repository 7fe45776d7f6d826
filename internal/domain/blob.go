package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes an object in blob storage.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and lists objects in blob storage.
type BlobReader interface {
	// Get returns ErrNotFound when the object does not exist. The caller
	// must close the returned reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports old pipeline records to blob storage. Each method returns
// the number of records archived. Pruning the archived rows from the primary
// store is a separate step, taken only after the archive upload succeeded.
type Archiver interface {
	ArchiveDeposits(ctx context.Context, before time.Time) (int64, error)
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
	ArchivePayouts(ctx context.Context, before time.Time) (int64, error)
}
