// Package storage defines the interface to the underlying object store.
package storage

import (
	"errors"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
)

// ErrNotFound indicates the object does not exist in the backend.
var ErrNotFound = errors.New("object not found in storage")

// IsNotFound reports whether err indicates a missing object, from either the
// storage layer or the domain layer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, domain.ErrObjectNotFound)
}
