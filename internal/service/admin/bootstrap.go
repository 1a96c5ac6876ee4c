package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/service/audit"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

// Bootstrap creates the first platform admin from credentials, typically
// ADMIN_EMAIL and ADMIN_PASSWORD. It does nothing when credentials are
// missing or a platform admin already exists, and reports whether it
// created one.
func (s *Service) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	err := s.CreatePlatformAdmin(ctx, email, password)
	if errors.Is(err, ErrAdminExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreatePlatformAdmin creates (or reuses) the user, the platform
// organization and a PLATFORM_ADMIN membership. It refuses when any
// platform admin exists.
func (s *Service) CreatePlatformAdmin(ctx context.Context, email, password string) error {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return apperrors.Validation("email and password are required", nil)
	}

	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		exists, err := r.Memberships.AnyWithRole(ctx, model.RolePlatformAdmin)
		if err != nil {
			return fmt.Errorf("failed to check platform admins: %w", err)
		}
		if exists {
			return apperrors.Conflict(ErrAdminExists.Error(), ErrAdminExists)
		}

		user, err := s.findOrCreateUser(ctx, r, email, platformAdminName, password)
		if err != nil {
			return err
		}
		return s.grantPlatformAdmin(ctx, r, user)
	})
	if err != nil {
		return asAppError(err)
	}
	log.Info().Str("email", email).Msg("platform admin created")
	return nil
}

// PromoteAdmin grants PLATFORM_ADMIN to an existing user.
func (s *Service) PromoteAdmin(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)

	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		user, err := r.Users.GetByEmail(ctx, email)
		if err != nil {
			return notFoundOr(err, "user")
		}
		already, err := r.Memberships.HasRoleAnywhere(ctx, user.ID, model.RolePlatformAdmin)
		if err != nil {
			return fmt.Errorf("failed to check platform role: %w", err)
		}
		if already {
			return apperrors.Conflict(ErrAlreadyAdmin.Error(), ErrAlreadyAdmin)
		}
		if err := s.grantPlatformAdmin(ctx, r, user); err != nil {
			return err
		}
		return s.auditor.Record(ctx, r.Audit, audit.Actor{UserID: user.ID, IPAddress: "cli"}, audit.Entry{
			Action:  model.AuditActionPromoteAdmin,
			Payload: map[string]interface{}{"email": email},
		})
	})
	if err != nil {
		return asAppError(err)
	}
	log.Info().Str("email", email).Msg("user promoted to platform admin")
	return nil
}

func (s *Service) grantPlatformAdmin(ctx context.Context, r *repository.Repositories, user *model.User) error {
	org, err := s.platformOrg(ctx, r)
	if err != nil {
		return err
	}
	m := &model.Membership{ID: uuid.New(), UserID: user.ID, OrgID: org.ID, Role: model.RolePlatformAdmin, CreatedAt: s.now()}
	if err := r.Memberships.Create(ctx, m); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// platformOrg returns the organization holding platform admin memberships,
// creating it without a subscription so expiry never blocks it.
func (s *Service) platformOrg(ctx context.Context, r *repository.Repositories) (*model.Organization, error) {
	org, err := r.Organizations.GetBySlug(ctx, model.PlatformOrgSlug)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get platform organization: %w", err)
	}
	now := s.now()
	org = &model.Organization{
		ID:        uuid.New(),
		Name:      platformOrgName,
		Slug:      model.PlatformOrgSlug,
		Plan:      model.PlanEnterprise,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Organizations.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create platform organization: %w", err)
	}
	return org, nil
}
