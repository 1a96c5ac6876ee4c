package model

import (
	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SelectOrgRequest struct {
	OrgID uuid.UUID `json:"org_id" binding:"required"`
}

// TokenResponse is returned whenever a new access token is issued.
type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int64      `json:"expires_in"`
	OrgID       *uuid.UUID `json:"org_id,omitempty"`
}

// Identity is the authenticated principal of a request. OrgID is nil
// until an organization is selected.
type Identity struct {
	UserID uuid.UUID
	Email  string
	OrgID  *uuid.UUID
}

// HasOrg reports whether an organization is selected.
func (i *Identity) HasOrg() bool {
	return i != nil && i.OrgID != nil && *i.OrgID != uuid.Nil
}
