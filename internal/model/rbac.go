package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of membership roles.
type Role string

const (
	RolePlatformAdmin Role = "PLATFORM_ADMIN"
	RoleOrgAdmin      Role = "ORG_ADMIN"
	RoleOrgUser       Role = "ORG_USER"
)

// ParseRole normalises s and reports whether it is a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePlatformAdmin, RoleOrgAdmin, RoleOrgUser:
		return true
	}
	return false
}

// Global reports whether the role is checked without organization scoping.
func (r Role) Global() bool {
	return r == RolePlatformAdmin
}

// Assignable reports whether the role can be granted inside a tenant
// (invites, member role edits). Platform admin is never assignable there.
func (r Role) Assignable() bool {
	return r == RoleOrgAdmin || r == RoleOrgUser
}

// Membership links a user to an organization with a role.
type Membership struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MemberView is a membership joined with its user, for member listings
type MemberView struct {
	Membership
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
}

// OrgMembership is an organization joined with the caller's role in it
type OrgMembership struct {
	Organization
	Role Role `json:"role" db:"role"`
}

// ChangeRoleRequest is the admin member role edit payload
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required,role"`
}
