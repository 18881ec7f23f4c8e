// Package repository defines data access interfaces for Tribuna Storage.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
)

// =============================================================================
// File Record Repository
// =============================================================================

// FileRecordRepository provides access to the stored-file slice of
// application records (documents, activities, avatars). The storage core
// never queries the rest of the row; the relational layer owns it.
type FileRecordRepository interface {
	// ListByEntityType returns every record of the given kind, including
	// records with no stored file.
	ListByEntityType(ctx context.Context, entityType domain.EntityType) ([]*domain.FileRecord, error)

	// ListWithFiles returns every record of every kind that carries a
	// non-null stored-path field.
	ListWithFiles(ctx context.Context) ([]*domain.FileRecord, error)

	// ClearFileReference nulls the file_path, file_name and file_type
	// fields of a record, removing a dangling reference.
	// Returns domain.ErrRecordNotFound if the record does not exist.
	ClearFileReference(ctx context.Context, entityType domain.EntityType, id int64) error

	// UpdateFilePath replaces the stored path of a record. Used by legacy
	// path migration.
	UpdateFilePath(ctx context.Context, entityType domain.EntityType, id int64, path string) error
}

// =============================================================================
// Distributed Lock Interface (Redis)
// =============================================================================

// DistributedLock defines the interface for distributed locking.
// Used to coordinate diagnostic scans across multiple server instances.
type DistributedLock interface {
	// Acquire attempts to acquire a lock. Returns true if the lock was
	// acquired, false if it's held by another process. The lock expires
	// automatically after the TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock. Returns true if the lock was released,
	// false if it wasn't held by this process.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
