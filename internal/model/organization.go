package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BillingStatus is shared by organizations and subscriptions.
type BillingStatus string

const (
	StatusActive  BillingStatus = "active"
	StatusPastDue BillingStatus = "past_due"
	StatusBlocked BillingStatus = "blocked"
)

// Valid reports whether s is one of the known billing statuses.
func (s BillingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusBlocked:
		return true
	}
	return false
}

// PlatformOrgSlug identifies the organization that holds platform admin memberships.
const PlatformOrgSlug = "platform"

var (
	slugStrip    = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// Slugify derives the url slug of an organization name: non-alphanumerics
// dropped, runs of spaces, dashes and underscores joined by a single dash.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(slugStrip.ReplaceAllString(name, "")))
	return strings.Trim(slugCollapse.ReplaceAllString(s, "-"), "-")
}

// Organization is a tenant; the unit of billing and access isolation.
type Organization struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Slug      string        `json:"slug" db:"slug"`
	Plan      Plan          `json:"plan" db:"plan"`
	Status    BillingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// IsBlocked reports whether access to the organization is suspended.
func (o *Organization) IsBlocked() bool {
	return o.Status == StatusBlocked
}

// CreateOrganizationRequest is the platform admin provisioning payload
type CreateOrganizationRequest struct {
	Name          string `json:"name" binding:"required,max=140"`
	Plan          string `json:"plan" binding:"omitempty,plan"`
	AdminEmail    string `json:"admin_email" binding:"required,email"`
	AdminName     string `json:"admin_name" binding:"omitempty,max=120"`
	AdminPassword string `json:"admin_password" binding:"omitempty,min=8"`
}

// UpdateOrganizationRequest carries a platform admin status/plan change
type UpdateOrganizationRequest struct {
	Status string `json:"status" binding:"omitempty,oneof=active past_due blocked"`
	Plan   string `json:"plan" binding:"omitempty,plan"`
}

// Dashboard is the member landing view of the selected organization
type Dashboard struct {
	Organization *Organization `json:"organization"`
	Roles        []Role        `json:"roles"`
}
