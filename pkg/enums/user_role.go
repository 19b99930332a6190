package enums

import (
	"fmt"
	"strings"
)

// UserRole is the platform-wide permission level of a user.
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
	// UserRoleUser is a sales agent (corretor).
	UserRoleUser UserRole = "user"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleManager,
	UserRoleUser,
}

func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsSupervisor reports whether the role sees every owner's records.
// admin and manager are interchangeable for authorization.
func (r UserRole) IsSupervisor() bool {
	return r == UserRoleAdmin || r == UserRoleManager
}

// Satisfies reports whether r is accepted where required is demanded.
func (r UserRole) Satisfies(required UserRole) bool {
	if r == required {
		return true
	}
	return r.IsSupervisor() && required.IsSupervisor()
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	normalized := UserRole(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
