package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/model"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

const ContextIdentity = "identity"

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(token string) (*model.Identity, error)
}

// Authorizer answers role questions and fails closed.
type Authorizer interface {
	RequireRole(ctx context.Context, id *model.Identity, role model.Role) error
	RequireOrgMember(ctx context.Context, id *model.Identity) error
}

type AuthMiddleware struct {
	authn Authenticator
	authz Authorizer
}

func NewAuthMiddleware(authn Authenticator, authz Authorizer) *AuthMiddleware {
	return &AuthMiddleware{authn: authn, authz: authz}
}

// Identify parses the bearer token when present and stores the identity.
// Requests without a token pass through; a token that is present but
// invalid is rejected.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			handler.RespondError(c, apperrors.Unauthorized(nil))
			return
		}

		id, err := m.authn.Authenticate(strings.TrimSpace(token))
		if err != nil {
			handler.RespondError(c, apperrors.Unauthorized(err))
			return
		}
		c.Set(ContextIdentity, id)
		c.Next()
	}
}

// RequireAuth rejects requests without an identity.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); !ok {
			handler.RespondError(c, apperrors.Unauthorized(nil))
			return
		}
		c.Next()
	}
}

// RequireRole requires an identity holding role.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			handler.RespondError(c, apperrors.Unauthorized(nil))
			return
		}
		if err := m.authz.RequireRole(c.Request.Context(), id, role); err != nil {
			handler.RespondError(c, err)
			return
		}
		c.Next()
	}
}

// RequireOrgMember requires a selected organization the identity belongs to.
func (m *AuthMiddleware) RequireOrgMember() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			handler.RespondError(c, apperrors.Unauthorized(nil))
			return
		}
		if err := m.authz.RequireOrgMember(c.Request.Context(), id); err != nil {
			handler.RespondError(c, err)
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Identify.
func IdentityFrom(c *gin.Context) (*model.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*model.Identity)
	return id, ok && id != nil
}
