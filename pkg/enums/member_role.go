package enums

import "fmt"

// MemberRole describes the role claim carried by an authenticated caller.
type MemberRole string

const (
	MemberRoleAdmin    MemberRole = "admin"
	MemberRoleOperator MemberRole = "operator"
	MemberRoleVendor   MemberRole = "vendor"
)

var validMemberRoles = []MemberRole{
	MemberRoleAdmin,
	MemberRoleOperator,
	MemberRoleVendor,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the role is recognized.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts a raw string into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
