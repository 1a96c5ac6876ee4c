package model

import (
	"time"

	"github.com/google/uuid"
)

// AdminAuditLog is an append-only record of a privileged operation.
type AdminAuditLog struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	AdminUserID uuid.UUID  `json:"admin_user_id" db:"admin_user_id"`
	Action      string     `json:"action" db:"action"`
	OrgID       *uuid.UUID `json:"org_id,omitempty" db:"org_id"`
	Payload     RawJSON    `json:"payload" db:"payload"`
	IPAddress   string     `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

const (
	AuditActionCreateOrg        = "admin_create_org"
	AuditActionUpdateOrg        = "admin_update_org"
	AuditActionChangeMemberRole = "admin_change_member_role"
	AuditActionBillingOverride  = "admin_billing_override"
	AuditActionPromoteAdmin     = "admin_promote_platform_admin"
)

// AuditFilter narrows audit log listings
type AuditFilter struct {
	OrgID *uuid.UUID
	Limit int
}
