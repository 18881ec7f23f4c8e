// Package domain contains the core business entities for Tribuna Storage.
package domain

import "strings"

// Logical path prefixes. These form the wire contract between the front end
// and the back end: application records persist logical paths, never raw
// storage locations.
const (
	// ObjectPathPrefix scopes private object references. Access is mediated
	// by the ACL decision engine.
	ObjectPathPrefix = "/objects/"

	// PublicObjectPathPrefix scopes public object references. They resolve
	// by probing the configured public search paths in order.
	PublicObjectPathPrefix = "/public-objects/"
)

// ObjectRef identifies a stored object by its canonical bucket/object pair.
// It is never exposed to application records; only the storage layer and its
// callers inside this module see it.
type ObjectRef struct {
	Bucket string
	Name   string
}

// Path returns the canonical "/bucket/object" form of the reference.
func (r ObjectRef) Path() string {
	return "/" + r.Bucket + "/" + r.Name
}

// String implements fmt.Stringer for log output.
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Name
}

// IsZero reports whether the reference is empty.
func (r ObjectRef) IsZero() bool {
	return r.Bucket == "" && r.Name == ""
}

// ParseObjectPath splits a "/bucket/object/sub/path" string into its bucket
// and object name. A missing leading slash is tolerated. Paths with fewer
// than two segments carry no derivable bucket name and fail with
// ErrInvalidPath.
func ParseObjectPath(path string) (ObjectRef, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parts := strings.SplitN(path[1:], "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ObjectRef{}, ErrInvalidPath
	}
	return ObjectRef{Bucket: parts[0], Name: parts[1]}, nil
}

// IsObjectPath reports whether p is a private logical path.
func IsObjectPath(p string) bool {
	return strings.HasPrefix(p, ObjectPathPrefix)
}

// IsPublicObjectPath reports whether p is a public logical path.
func IsPublicObjectPath(p string) bool {
	return strings.HasPrefix(p, PublicObjectPathPrefix)
}
