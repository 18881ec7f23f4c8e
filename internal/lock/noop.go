package lock

import (
	"context"
	"time"
)

// NoopLocker implements Locker without any actual locking.
// Used when concurrent scans are acceptable (tests, one-shot CLI runs).
type NoopLocker struct{}

// NewNoopLocker creates a new no-op locker.
func NewNoopLocker() *NoopLocker {
	return &NoopLocker{}
}

// Acquire always succeeds.
func (n *NoopLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

// Release always succeeds.
func (n *NoopLocker) Release(context.Context, string) (bool, error) {
	return true, nil
}

// Extend always succeeds.
func (n *NoopLocker) Extend(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
