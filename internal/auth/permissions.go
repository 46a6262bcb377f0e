package auth

import "slices"

// Role is the authorisation tier carried in a token.
type Role string

const (
	// RoleViewer may read descriptions, properties, actions and events, and
	// receive pushes over the WebSocket.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally write properties and request or cancel
	// actions.
	RoleOperator Role = "operator"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// ParseRole maps a role name onto a Role.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !slices.Contains(ValidRoles, r) {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Permission represents a named capability on Things.
type Permission string

// Permission constants.
const (
	PermThingRead     Permission = "thing:read"
	PermPropertyWrite Permission = "property:write"
	PermActionRequest Permission = "action:request"
	PermActionCancel  Permission = "action:cancel"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermThingRead,
	},
	RoleOperator: {
		PermThingRead,
		PermPropertyWrite,
		PermActionRequest,
		PermActionCancel,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of a role's permissions, or nil for an
// unknown role.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
