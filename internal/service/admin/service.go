// Package admin implements platform administration. Every mutating
// operation writes its audit entry inside the same transaction, so an
// audit failure aborts the operation.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/service/audit"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

const (
	defaultAdminName    = "Org Admin"
	platformAdminName   = "Platform Admin"
	platformOrgName     = "Admin Org"
	defaultAuditPageLen = 100
)

var (
	ErrAdminExists       = errors.New("a platform admin already exists")
	ErrAlreadyAdmin      = errors.New("user is already a platform admin")
	ErrPasswordRequired  = errors.New("password is required to create a new user")
	ErrMembershipMissing = errors.New("membership does not belong to organization")
)

type Service struct {
	store   repository.Store
	auditor *audit.Service
	hasher  security.PasswordHasher
	period  time.Duration
	now     func() time.Time
}

// NewService builds the admin service. period is the billing period used
// when an override has to open a new one.
func NewService(store repository.Store, auditor *audit.Service, hasher security.PasswordHasher, period time.Duration) *Service {
	return &Service{
		store:   store,
		auditor: auditor,
		hasher:  hasher,
		period:  period,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListOrganizations(ctx context.Context) ([]*model.Organization, error) {
	orgs, err := s.store.Repos().Organizations.List(ctx)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list organizations: %w", err))
	}
	return orgs, nil
}

// CreateOrganization provisions a tenant with an ORG_ADMIN member. The
// subscription starts active with its period already ending, so the new
// organization enters the grace window immediately.
func (s *Service) CreateOrganization(ctx context.Context, actor audit.Actor, req *model.CreateOrganizationRequest) (*model.Organization, error) {
	slug := model.Slugify(req.Name)
	if slug == "" {
		return nil, apperrors.Validation("invalid organization name", nil)
	}
	plan := model.PlanFree
	if req.Plan != "" {
		p, ok := model.ParsePlan(req.Plan)
		if !ok {
			return nil, apperrors.Validation("unknown plan", nil)
		}
		plan = p
	}
	adminEmail := model.NormalizeEmail(req.AdminEmail)
	adminName := req.AdminName
	if adminName == "" {
		adminName = defaultAdminName
	}

	now := s.now()
	org := &model.Organization{
		ID:        uuid.New(),
		Name:      req.Name,
		Slug:      slug,
		Plan:      plan,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		if _, err := r.Organizations.GetBySlug(ctx, slug); err == nil {
			return apperrors.Conflict("an organization with this name already exists", repository.ErrDuplicate)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to get organization: %w", err)
		}
		if err := r.Organizations.Create(ctx, org); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.Conflict("an organization with this name already exists", err)
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}

		user, err := s.findOrCreateUser(ctx, r, adminEmail, adminName, req.AdminPassword)
		if err != nil {
			return err
		}
		membership := &model.Membership{ID: uuid.New(), UserID: user.ID, OrgID: org.ID, Role: model.RoleOrgAdmin, CreatedAt: now}
		if err := r.Memberships.Create(ctx, membership); err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}

		periodEnd := now
		sub := &model.Subscription{
			ID:               uuid.New(),
			OrgID:            org.ID,
			Plan:             plan,
			Status:           model.StatusActive,
			CurrentPeriodEnd: &periodEnd,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := r.Subscriptions.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		orgID := org.ID
		return s.auditor.Record(ctx, r.Audit, actor, audit.Entry{
			Action:  model.AuditActionCreateOrg,
			OrgID:   &orgID,
			Payload: map[string]interface{}{"plan": plan, "admin_email": adminEmail},
		})
	})
	if err != nil {
		return nil, asAppError(err)
	}

	log.Info().Str("org_id", org.ID.String()).Str("slug", slug).Str("admin_id", actor.UserID.String()).Msg("organization created")
	return org, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, r *repository.Repositories, email, name, password string) (*model.User, error) {
	user, err := r.Users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if password == "" {
		return nil, apperrors.Validation(ErrPasswordRequired.Error(), ErrPasswordRequired)
	}
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooShort) || errors.Is(err, security.ErrPasswordTooLong) {
		return nil, apperrors.Validation(err.Error(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user = &model.User{ID: uuid.New(), Email: email, Name: name, PasswordHash: hash, CreatedAt: s.now()}
	if err := r.Users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*model.MemberView, error) {
	repos := s.store.Repos()
	if _, err := repos.Organizations.Get(ctx, orgID); err != nil {
		return nil, notFoundOr(err, "organization")
	}
	members, err := repos.Memberships.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list members: %w", err))
	}
	return members, nil
}

// ChangeMemberRole replaces the role of a membership of orgID.
func (s *Service) ChangeMemberRole(ctx context.Context, actor audit.Actor, orgID, membershipID uuid.UUID, roleName string) (*model.Membership, error) {
	role, ok := model.ParseRole(roleName)
	if !ok || !role.Assignable() {
		return nil, apperrors.Validation("invalid role", nil)
	}

	var result *model.Membership
	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		m, err := r.Memberships.Get(ctx, membershipID)
		if err != nil {
			return notFoundOr(err, "membership")
		}
		if m.OrgID != orgID {
			return apperrors.NotFound("membership", ErrMembershipMissing)
		}
		if err := r.Memberships.UpdateRole(ctx, m.ID, role); err != nil {
			return fmt.Errorf("failed to update membership: %w", err)
		}
		m.Role = role
		result = m

		return s.auditor.Record(ctx, r.Audit, actor, audit.Entry{
			Action:  model.AuditActionChangeMemberRole,
			OrgID:   &orgID,
			Payload: map[string]interface{}{"membership_id": m.ID, "role": role},
		})
	})
	if err != nil {
		return nil, asAppError(err)
	}
	return result, nil
}

// UpdateOrganization sets status and/or plan. Empty fields are kept.
func (s *Service) UpdateOrganization(ctx context.Context, actor audit.Actor, orgID uuid.UUID, req *model.UpdateOrganizationRequest) (*model.Organization, error) {
	var (
		status model.BillingStatus
		plan   model.Plan
	)
	if req.Status != "" {
		status = model.BillingStatus(req.Status)
		if !status.Valid() {
			return nil, apperrors.Validation("invalid status", nil)
		}
	}
	if req.Plan != "" {
		p, ok := model.ParsePlan(req.Plan)
		if !ok {
			return nil, apperrors.Validation("unknown plan", nil)
		}
		plan = p
	}

	now := s.now()
	var result *model.Organization
	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		org, err := r.Organizations.GetForUpdate(ctx, orgID)
		if err != nil {
			return notFoundOr(err, "organization")
		}
		from := org.Status
		if status != "" {
			org.Status = status
		}
		if plan != "" {
			org.Plan = plan
		}
		org.UpdatedAt = now
		if err := r.Organizations.Update(ctx, org); err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}
		result = org

		if err := s.auditor.Record(ctx, r.Audit, actor, audit.Entry{
			Action:  model.AuditActionUpdateOrg,
			OrgID:   &orgID,
			Payload: map[string]interface{}{"status": org.Status, "plan": org.Plan},
		}); err != nil {
			return err
		}
		if from == org.Status {
			return nil
		}
		return appendEvent(ctx, r, model.EventOrgStatusChanged, org, now)
	})
	if err != nil {
		return nil, asAppError(err)
	}
	return result, nil
}

// OverrideBilling manually releases an organization: org and subscription
// become active. A missing or lapsed period is renewed from now so the
// next access check does not undo the override.
func (s *Service) OverrideBilling(ctx context.Context, actor audit.Actor, orgID uuid.UUID) (*model.Organization, error) {
	now := s.now()
	var result *model.Organization
	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		org, err := r.Organizations.GetForUpdate(ctx, orgID)
		if err != nil {
			return notFoundOr(err, "organization")
		}
		sub, err := r.Subscriptions.GetByOrgForUpdate(ctx, orgID)
		if errors.Is(err, repository.ErrNotFound) {
			sub = &model.Subscription{ID: uuid.New(), OrgID: orgID, Plan: org.Plan, CreatedAt: now}
		} else if err != nil {
			return fmt.Errorf("failed to get subscription: %w", err)
		}

		from := org.Status
		if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Before(now) {
			periodEnd := now.Add(s.period)
			sub.CurrentPeriodEnd = &periodEnd
		}
		sub.Status = model.StatusActive
		sub.UpdatedAt = now
		org.Status = model.StatusActive
		org.UpdatedAt = now

		if err := r.Subscriptions.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := r.Organizations.Update(ctx, org); err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}
		result = org

		if err := s.auditor.Record(ctx, r.Audit, actor, audit.Entry{
			Action:  model.AuditActionBillingOverride,
			OrgID:   &orgID,
			Payload: map[string]interface{}{"from": from, "current_period_end": sub.CurrentPeriodEnd},
		}); err != nil {
			return err
		}
		return appendEvent(ctx, r, model.EventBillingOverridden, org, now)
	})
	if err != nil {
		return nil, asAppError(err)
	}

	log.Info().Str("org_id", orgID.String()).Str("admin_id", actor.UserID.String()).Msg("billing overridden")
	return result, nil
}

func (s *Service) AuditLogs(ctx context.Context, orgID *uuid.UUID, limit int) ([]*model.AdminAuditLog, error) {
	if limit <= 0 || limit > defaultAuditPageLen {
		limit = defaultAuditPageLen
	}
	return s.auditor.List(ctx, model.AuditFilter{OrgID: orgID, Limit: limit})
}

func appendEvent(ctx context.Context, r *repository.Repositories, eventType string, org *model.Organization, now time.Time) error {
	orgID := org.ID
	event, err := model.NewOutboxEvent(eventType, &orgID, model.BillingEvent{
		OrgID:      org.ID,
		Plan:       org.Plan,
		OrgStatus:  org.Status,
		OccurredAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	if err := r.Outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Internal(fmt.Errorf("failed to get %s: %w", resource, err))
}

func asAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Internal(err)
}
