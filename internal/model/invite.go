package model

import (
	"time"

	"github.com/google/uuid"
)

// InviteToken is a single-use invitation into an organization. Only the
// SHA-256 of the raw secret is stored.
type InviteToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	OrgID     uuid.UUID  `json:"org_id" db:"org_id"`
	CreatedBy uuid.UUID  `json:"created_by" db:"created_by"`
	Email     *string    `json:"email,omitempty" db:"email"`
	TokenHash string     `json:"-" db:"token_hash"`
	Role      Role       `json:"role" db:"role"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Usable reports whether the invite is neither consumed nor expired at now.
func (t *InviteToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

type CreateInviteRequest struct {
	Role  string `json:"role" binding:"required,role"`
	Email string `json:"email" binding:"omitempty,email"`
}

type AcceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

// InviteResponse carries the raw token; it is only ever shown once.
type InviteResponse struct {
	Invite *InviteToken `json:"invite"`
	Token  string       `json:"token"`
	Link   string       `json:"link"`
	Mailed bool         `json:"mailed"`
}
