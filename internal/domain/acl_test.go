package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermission_Satisfies(t *testing.T) {
	require.True(t, PermissionRead.Satisfies(PermissionRead))
	require.True(t, PermissionWrite.Satisfies(PermissionRead))
	require.True(t, PermissionWrite.Satisfies(PermissionWrite))
	require.False(t, PermissionRead.Satisfies(PermissionWrite))
}

func TestPermission_JSON(t *testing.T) {
	raw, err := json.Marshal(PermissionWrite)
	require.NoError(t, err)
	require.Equal(t, `"write"`, string(raw))

	var p Permission
	require.NoError(t, json.Unmarshal([]byte(`"read"`), &p))
	require.Equal(t, PermissionRead, p)

	require.Error(t, json.Unmarshal([]byte(`"delete"`), &p))
	require.Error(t, json.Unmarshal([]byte(`1`), &p))
}

func TestVisibility_Valid(t *testing.T) {
	require.True(t, VisibilityPublic.Valid())
	require.True(t, VisibilityPrivate.Valid())
	require.False(t, Visibility("internal").Valid())
	require.False(t, Visibility("").Valid())
}

func TestACLPolicy_IsPublic(t *testing.T) {
	require.True(t, (&ACLPolicy{Visibility: VisibilityPublic}).IsPublic())
	require.False(t, (&ACLPolicy{Visibility: VisibilityPrivate}).IsPublic())

	var nilPolicy *ACLPolicy
	require.False(t, nilPolicy.IsPublic())
}

func TestAdminOnlyMatcher(t *testing.T) {
	m := NewAdminOnlyMatcher([]string{"admin-1"})
	group := GroupSpec{Type: GroupAdminOnly}

	require.True(t, m.Matches("admin-1", group))
	require.False(t, m.Matches("user-1", group))

	// The empty identity never matches, even against an empty admin set
	// that could otherwise be probed with zero values.
	require.False(t, m.Matches("", group))
	require.False(t, NewAdminOnlyMatcher(nil).Matches("", group))
}
