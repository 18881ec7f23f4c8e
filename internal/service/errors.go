package service

import "errors"

// Common service errors.
var (
	// ErrScanInProgress indicates another instance holds the scan lock.
	ErrScanInProgress = errors.New("a diagnostic scan is already running")

	// ErrMissingOwner indicates a policy was submitted without an owner.
	ErrMissingOwner = errors.New("ACL policy requires an owner")

	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("visibility must be 'public' or 'private'")
)
