package domain

import "errors"

var ErrInvalidRole = errors.New("invalid role")

// Role is the authorization level carried in every session token.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// AllRoles contains all valid roles, least privileged first
var AllRoles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// IsValid checks if a role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw claim value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", ErrInvalidRole
	}
	return r, nil
}
