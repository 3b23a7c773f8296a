package auth

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer may read displays, attributes, status and the audit trail.
	RoleViewer Role = "viewer"

	// RoleOperator may also change attributes.
	RoleOperator Role = "operator"
)

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermDisplayRead  Permission = "display:read"
	PermDisplayWrite Permission = "display:write"
	PermAuditRead    Permission = "audit:read"
)

// rolePermissions is the single source of truth for the role model.
var rolePermissions = map[Role][]Permission{
	RoleViewer:   {PermDisplayRead, PermAuditRead},
	RoleOperator: {PermDisplayRead, PermAuditRead, PermDisplayWrite},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return "", ErrInvalidRole
	}
	return r, nil
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
