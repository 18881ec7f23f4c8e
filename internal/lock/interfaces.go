// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
package lock

import (
	"context"
	"time"
)

// Locker defines the interface for distributed/local locking.
// This abstraction allows switching between in-memory locks (single-node)
// and Redis-based locks (distributed) without changing business logic.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another
	// process. The lock expires automatically after the TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// DiagnosticScan returns the lock key guarding storage reconciliation scans.
// Prevents concurrent scans across instances.
func (lockKeys) DiagnosticScan() string {
	return "lock:diagnostics:scan"
}

// Cleanup returns the lock key guarding reference cleanup runs.
func (lockKeys) Cleanup() string {
	return "lock:diagnostics:cleanup"
}

// PathMigration returns the lock key guarding legacy path migration runs.
func (lockKeys) PathMigration() string {
	return "lock:diagnostics:migrate"
}
