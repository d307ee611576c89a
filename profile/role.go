package profile

import "strings"

// Role is the platform role attached to a user profile.
//
// The set is closed: ADMIN, LECTURER and STUDENT. Values outside the set are carried
// verbatim so persisted profiles round-trip, but [Role.Valid] reports false for them.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleLecturer Role = "LECTURER"
	RoleStudent  Role = "STUDENT"
)

// Roles returns the closed role set in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleLecturer, RoleStudent}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLecturer, RoleStudent:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes s (trimmed, upper-cased) and reports whether it names a known role.
// Unknown input is returned as-is alongside false.
func ParseRole(s string) (Role, bool) {
	normalized := Role(strings.ToUpper(strings.TrimSpace(s)))
	if normalized.Valid() {
		return normalized, true
	}
	return Role(s), false
}
