package domain

import "fmt"

// Role is the authorization tier assigned to a user account.
type Role string

const (
	RoleUser    Role = "user"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
	RoleOwner   Role = "owner"
)

// ParseRole converts a stored string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RolePremium, RoleAdmin, RoleOwner:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Level maps a role to its position in the hierarchy. Gaps leave room for
// intermediate tiers.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 40
	case RoleAdmin:
		return 30
	case RolePremium:
		return 20
	case RoleUser:
		return 10
	default:
		return 0
	}
}

// AtLeast reports whether the role meets or exceeds the target tier.
func (r Role) AtLeast(target Role) bool {
	return r.Level() >= target.Level()
}

// IsValid reports whether the role is one of the known tiers.
func (r Role) IsValid() bool {
	return r.Level() > 0
}
