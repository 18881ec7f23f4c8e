// Package domain contains the core business entities for Tribuna Storage.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Path Errors
	// ===========================================

	// ErrInvalidPath indicates a path does not decompose into a bucket and
	// object name. Caller-fixable, never retried.
	ErrInvalidPath = errors.New("invalid path: must contain at least a bucket name")

	// ErrInvalidCategory indicates an upload category is not a valid slug.
	ErrInvalidCategory = errors.New("invalid upload category")

	// ===========================================
	// Object Errors
	// ===========================================

	// ErrObjectNotFound indicates the requested object does not exist, or a
	// logical path could not be resolved to one.
	ErrObjectNotFound = errors.New("object not found")

	// ErrPolicyNotSet indicates the object carries no ACL policy metadata.
	// Distinct from an explicit deny: callers must treat it as deny-all.
	ErrPolicyNotSet = errors.New("object has no ACL policy")

	// ErrAccessDenied indicates the requester is not allowed the requested
	// permission on the object.
	ErrAccessDenied = errors.New("access denied")

	// ===========================================
	// Upload Errors
	// ===========================================

	// ErrSigningFailed indicates the signing backend was unreachable or
	// rejected the request. Safe to retry once with backoff, not safe to
	// retry indefinitely.
	ErrSigningFailed = errors.New("failed to sign upload URL")

	// ===========================================
	// Streaming Errors
	// ===========================================

	// ErrStreamInterrupted indicates a mid-transfer I/O failure after
	// response headers were already sent. The connection must be aborted;
	// no well-formed error payload is possible.
	ErrStreamInterrupted = errors.New("stream interrupted after headers sent")

	// ===========================================
	// Record Errors
	// ===========================================

	// ErrRecordNotFound indicates the requested file record does not exist.
	ErrRecordNotFound = errors.New("file record not found")
)

// ConfigError indicates a required configuration value is missing or invalid.
// The process fails fast on these at startup.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// NewConfigError creates a ConfigError for the given key.
func NewConfigError(key, reason string) *ConfigError {
	return &ConfigError{Key: key, Reason: reason}
}
