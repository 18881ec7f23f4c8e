// Package storage defines the interface to the underlying object store.
// The storage layer moves raw bytes and side-channel metadata; it knows
// nothing about logical paths or ACL semantics.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
)

// ObjectStat carries the metadata the download path needs: size, content
// type, ETag and the custom metadata map holding the serialized ACL policy.
type ObjectStat struct {
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time

	// Metadata is the object's custom metadata (lowercased keys).
	Metadata map[string]string
}

// Backend is the storage-provider abstraction. Implementations exist for S3
// (and S3-compatible stores) and for in-memory use in tests and single-node
// development. All operations are single network round-trips; the interface
// is stateless and safe for concurrent use.
type Backend interface {
	// Exists checks whether the object exists. A resolved reference is not
	// proof of existence; callers verify explicitly before streaming.
	Exists(ctx context.Context, ref domain.ObjectRef) (bool, error)

	// Stat returns the object's metadata.
	// Returns an error satisfying IsNotFound if the object does not exist.
	Stat(ctx context.Context, ref domain.ObjectRef) (*ObjectStat, error)

	// Open returns a reader over the object's bytes. The reader is bound to
	// ctx: cancelling the context aborts the underlying transfer. Caller
	// must close the reader.
	Open(ctx context.Context, ref domain.ObjectRef) (io.ReadCloser, error)

	// SetMetadata replaces the object's custom metadata wholesale.
	// Last-write-wins; the store's single-key metadata atomicity is relied
	// upon, no locking is layered on top.
	SetMetadata(ctx context.Context, ref domain.ObjectRef, metadata map[string]string) error

	// PresignPut mints a time-limited signed URL authorizing one direct
	// client PUT of the object's bytes. The URL alone reserves nothing:
	// no object exists until the client uploads.
	PresignPut(ctx context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error)
}
