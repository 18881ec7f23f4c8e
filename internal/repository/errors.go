// Package repository defines data access interfaces for Tribuna Storage.
package repository

import "errors"

// Repository-level errors.
var (
	// ErrUnknownEntityType indicates a record kind with no backing table.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrLockUnavailable indicates the lock backend is unreachable.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)
