// Package memory provides an in-memory storage backend.
// This is suitable for tests and single-node development where no S3
// endpoint is available. Contents are NOT shared across process restarts.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// object is a single stored object with its side-channel metadata.
type object struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
	metadata    map[string]string
}

// Backend implements storage.Backend over a process-local map.
// Safe for concurrent use.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object

	// signHost is the host used in fake presigned URLs.
	signHost string

	// FailSigning forces PresignPut to fail. Used by tests to exercise
	// signing-outage behavior.
	FailSigning bool
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		objects:  make(map[string]*object),
		signHost: "storage.local",
	}
}

func key(ref domain.ObjectRef) string {
	return ref.Bucket + "/" + ref.Name
}

// Put stores object bytes directly, standing in for the client-side PUT
// against a presigned URL.
func (b *Backend) Put(ref domain.ObjectRef, data []byte, contentType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key(ref)] = &object{
		data:        data,
		contentType: contentType,
		etag:        fmt.Sprintf("%q", uuid.NewString()),
		modified:    time.Now().UTC(),
		metadata:    make(map[string]string),
	}
}

// Delete removes an object if present.
func (b *Backend) Delete(ref domain.ObjectRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key(ref))
}

// Exists implements storage.Backend.
func (b *Backend) Exists(_ context.Context, ref domain.ObjectRef) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key(ref)]
	return ok, nil
}

// Stat implements storage.Backend.
func (b *Backend) Stat(_ context.Context, ref domain.ObjectRef) (*storage.ObjectStat, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key(ref)]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", ref, storage.ErrNotFound)
	}

	metadata := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		metadata[k] = v
	}
	return &storage.ObjectStat{
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         obj.etag,
		LastModified: obj.modified,
		Metadata:     metadata,
	}, nil
}

// Open implements storage.Backend.
func (b *Backend) Open(_ context.Context, ref domain.ObjectRef) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[key(ref)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", ref, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// SetMetadata implements storage.Backend. The incoming map replaces any
// prior metadata wholesale, matching the S3 REPLACE directive.
func (b *Backend) SetMetadata(_ context.Context, ref domain.ObjectRef, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key(ref)]
	if !ok {
		return fmt.Errorf("set metadata %s: %w", ref, storage.ErrNotFound)
	}
	replaced := make(map[string]string, len(metadata))
	for k, v := range metadata {
		replaced[k] = v
	}
	obj.metadata = replaced
	return nil
}

// PresignPut implements storage.Backend with a synthetic signed URL shaped
// like a real provider URL (host, path, expiry and signature query params).
func (b *Backend) PresignPut(_ context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error) {
	if b.FailSigning {
		return "", fmt.Errorf("%w: signing endpoint unreachable", domain.ErrSigningFailed)
	}

	q := url.Values{}
	q.Set("X-Goog-Expires", fmt.Sprintf("%d", int(ttl.Seconds())))
	q.Set("X-Goog-Signature", uuid.NewString())

	u := url.URL{
		Scheme:   "https",
		Host:     b.signHost,
		Path:     ref.Path(),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
