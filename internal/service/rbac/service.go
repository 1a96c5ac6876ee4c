// Package rbac answers role questions for the acting user. Every check
// fails closed: lookup errors and missing memberships deny.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

var ErrNoOrganization = errors.New("no organization selected")

type Service struct {
	store repository.Store
}

func NewService(store repository.Store) *Service {
	return &Service{store: store}
}

// HasRole reports whether id holds role. PLATFORM_ADMIN is matched on any
// membership row; every other role must be held in the selected
// organization.
func (s *Service) HasRole(ctx context.Context, id *model.Identity, role model.Role) (bool, error) {
	if id == nil || !role.Valid() {
		return false, nil
	}
	memberships := s.store.Repos().Memberships

	if role.Global() {
		ok, err := memberships.HasRoleAnywhere(ctx, id.UserID, role)
		if err != nil {
			return false, fmt.Errorf("failed to check platform role: %w", err)
		}
		return ok, nil
	}

	if !id.HasOrg() {
		return false, nil
	}
	rows, err := memberships.ListForUserInOrg(ctx, id.UserID, *id.OrgID)
	if err != nil {
		return false, fmt.Errorf("failed to get memberships: %w", err)
	}
	for _, m := range rows {
		if m.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole returns a Forbidden error unless HasRole holds.
func (s *Service) RequireRole(ctx context.Context, id *model.Identity, role model.Role) error {
	ok, err := s.HasRole(ctx, id, role)
	if err != nil {
		return apperrors.Forbidden(err)
	}
	if !ok {
		return apperrors.Forbidden(nil)
	}
	return nil
}

// IsMember reports whether the user has any membership in orgID.
func (s *Service) IsMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	rows, err := s.store.Repos().Memberships.ListForUserInOrg(ctx, userID, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to get memberships: %w", err)
	}
	return len(rows) > 0, nil
}

// RequireOrgMember returns a Forbidden error unless the identity has an
// organization selected and belongs to it.
func (s *Service) RequireOrgMember(ctx context.Context, id *model.Identity) error {
	if id == nil || !id.HasOrg() {
		return apperrors.Forbidden(ErrNoOrganization)
	}
	ok, err := s.IsMember(ctx, id.UserID, *id.OrgID)
	if err != nil {
		return apperrors.Forbidden(err)
	}
	if !ok {
		return apperrors.Forbidden(nil)
	}
	return nil
}
