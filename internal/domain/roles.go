// Package domain defines the roster types, role hierarchy and repository
// contracts shared by the stores and the command handlers.
package domain

import "strings"

// Role is a member's privilege tier.
type Role string

const (
	// RoleSuperAdmin can manage admins and read the audit log.
	RoleSuperAdmin Role = "super_admin"
	// RoleAdmin manages leaders, codes and activation.
	RoleAdmin Role = "admin"
	// RoleLeader may query the roster.
	RoleLeader Role = "leader"
	// RoleMember is the default tier for imported members.
	RoleMember Role = "member"
)

// Role priorities, higher means more privileged.
const (
	RolePrioritySuperAdmin = 4
	RolePriorityAdmin      = 3
	RolePriorityLeader     = 2
	RolePriorityMember     = 1
)

// Role sets used by the authorization gates.
var (
	MemberRoles     = []Role{RoleSuperAdmin, RoleAdmin, RoleLeader}
	AdminRoles      = []Role{RoleSuperAdmin, RoleAdmin}
	SuperAdminRoles = []Role{RoleSuperAdmin}
)

// RolePriority returns the numeric priority for a role; unknown roles map to 0.
func RolePriority(role Role) int {
	switch role {
	case RoleSuperAdmin:
		return RolePrioritySuperAdmin
	case RoleAdmin:
		return RolePriorityAdmin
	case RoleLeader:
		return RolePriorityLeader
	case RoleMember:
		return RolePriorityMember
	default:
		return 0
	}
}

// AtLeast reports whether r is as privileged as other.
func (r Role) AtLeast(other Role) bool {
	return RolePriority(r) >= RolePriority(other) && RolePriority(r) > 0
}

// Elevated reports whether the role carries admin powers.
func (r Role) Elevated() bool {
	return r.AtLeast(RoleAdmin)
}

// In reports whether r is one of roles.
func (r Role) In(roles []Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return RolePriority(r) > 0
}

// DisplayName is the Italian label shown in chat.
func (r Role) DisplayName() string {
	switch r {
	case RoleSuperAdmin:
		return "Super Admin"
	case RoleAdmin:
		return "Admin"
	case RoleLeader:
		return "Capo"
	case RoleMember:
		return "Iscritto"
	default:
		return string(r)
	}
}

// ParseRole accepts the stored value or the legacy two-letter codes.
func ParseRole(value string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RoleSuperAdmin), "sa":
		return RoleSuperAdmin, true
	case string(RoleAdmin), "ad":
		return RoleAdmin, true
	case string(RoleLeader), "ca":
		return RoleLeader, true
	case string(RoleMember), "is":
		return RoleMember, true
	default:
		return "", false
	}
}
