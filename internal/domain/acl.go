// Package domain contains the core business entities for Tribuna Storage.
package domain

import (
	"encoding/json"
	"fmt"
)

// ACLPolicyVersion is the current schema version written with every policy.
// Readers must tolerate older versions; a version bump accompanies any shape
// change so stale metadata can be migrated rather than silently misparsed.
const ACLPolicyVersion = 1

// Visibility controls the caching class of an object and whether anonymous
// reads are allowed.
type Visibility string

const (
	// VisibilityPublic allows unauthenticated reads.
	VisibilityPublic Visibility = "public"

	// VisibilityPrivate restricts access to the owner and matching ACL rules.
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether the visibility is a known value.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Permission is an ordered access level. Write implies read: a rule granting
// PermissionWrite satisfies a PermissionRead request.
type Permission int

const (
	// PermissionRead allows reading object content and metadata.
	PermissionRead Permission = iota

	// PermissionWrite allows replacing object content and policy.
	PermissionWrite
)

// Satisfies reports whether a granted permission covers the requested one.
func (p Permission) Satisfies(requested Permission) bool {
	return p >= requested
}

// String returns the wire form of the permission.
func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// MarshalJSON encodes the permission as its wire string.
func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the permission from its wire string.
func (p *Permission) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "read":
		*p = PermissionRead
	case "write":
		*p = PermissionWrite
	default:
		return fmt.Errorf("unknown permission %q", s)
	}
	return nil
}

// GroupType tags a class of identities inside an ACL rule.
type GroupType string

// GroupAdminOnly matches identities registered as administrators.
// Further group kinds (e.g. relation to a record) only need a new matcher;
// the decision engine loop is unchanged.
const GroupAdminOnly GroupType = "admin_only"

// GroupSpec identifies a class of identities inside an ACL rule. It is used
// only within policies and never persisted independently.
type GroupSpec struct {
	Type GroupType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// ACLRule grants a permission to a group of identities.
type ACLRule struct {
	Group      GroupSpec  `json:"group"`
	Permission Permission `json:"permission"`
}

// ACLPolicy is the sole input to access decisions for one stored object.
// It lives in the object's custom metadata, not its byte content. Setting a
// policy is last-write-wins: a full policy always replaces any prior one.
type ACLPolicy struct {
	Version    int        `json:"version"`
	Owner      string     `json:"owner"`
	Visibility Visibility `json:"visibility"`
	Rules      []ACLRule  `json:"aclRules,omitempty"`
}

// IsPublic reports whether the policy allows anonymous reads.
func (p *ACLPolicy) IsPublic() bool {
	return p != nil && p.Visibility == VisibilityPublic
}

// GroupMatcher decides whether an identity belongs to a group. Matchers are
// registered per GroupType so new group kinds plug in without touching the
// decision engine.
type GroupMatcher interface {
	// Matches reports whether the identity belongs to the group.
	Matches(identity string, group GroupSpec) bool
}

// GroupMatcherFunc adapts a function to the GroupMatcher interface.
type GroupMatcherFunc func(identity string, group GroupSpec) bool

// Matches implements GroupMatcher.
func (f GroupMatcherFunc) Matches(identity string, group GroupSpec) bool {
	return f(identity, group)
}

// AdminOnlyMatcher matches identities against a fixed administrator set.
type AdminOnlyMatcher struct {
	admins map[string]struct{}
}

// NewAdminOnlyMatcher creates a matcher for the given administrator ids.
func NewAdminOnlyMatcher(adminIDs []string) *AdminOnlyMatcher {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &AdminOnlyMatcher{admins: admins}
}

// Matches implements GroupMatcher.
func (m *AdminOnlyMatcher) Matches(identity string, _ GroupSpec) bool {
	if identity == "" {
		return false
	}
	_, ok := m.admins[identity]
	return ok
}
