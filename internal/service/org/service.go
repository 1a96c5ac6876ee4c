// Package org covers the tenant-facing organization surface: selecting
// the active organization, invites and the member area.
package org

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/email"
	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/service/rbac"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

const DefaultInviteTTL = 7 * 24 * time.Hour

var ErrInviteUnusable = errors.New("invalid or expired invite")

// TokenIssuer signs access tokens with an organization selected.
type TokenIssuer interface {
	IssueToken(user *model.User, orgID *uuid.UUID) (*model.TokenResponse, error)
}

type Config struct {
	// PublicURL prefixes invite links.
	PublicURL string
	InviteTTL time.Duration
}

type Service struct {
	store  repository.Store
	authz  *rbac.Service
	tokens TokenIssuer
	mailer email.Service
	cfg    Config
	now    func() time.Time
}

func NewService(store repository.Store, authz *rbac.Service, tokens TokenIssuer, mailer email.Service, cfg Config) *Service {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = DefaultInviteTTL
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Service{
		store:  store,
		authz:  authz,
		tokens: tokens,
		mailer: mailer,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the organizations the user belongs to with their role.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*model.OrgMembership, error) {
	orgs, err := s.store.Repos().Organizations.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list organizations: %w", err))
	}
	return orgs, nil
}

// Select issues a token with orgID selected. The user must belong to it.
func (s *Service) Select(ctx context.Context, id *model.Identity, orgID uuid.UUID) (*model.TokenResponse, error) {
	ok, err := s.authz.IsMember(ctx, id.UserID, orgID)
	if err != nil {
		return nil, apperrors.Forbidden(err)
	}
	if !ok {
		return nil, apperrors.Forbidden(nil)
	}
	user, err := s.user(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	return s.tokens.IssueToken(user, &orgID)
}

// CreateInvite generates a single-use invite into the selected
// organization. The raw token is only part of the response.
func (s *Service) CreateInvite(ctx context.Context, id *model.Identity, req *model.CreateInviteRequest) (*model.InviteResponse, error) {
	if err := s.authz.RequireRole(ctx, id, model.RoleOrgAdmin); err != nil {
		return nil, err
	}
	role, ok := model.ParseRole(req.Role)
	if !ok || !role.Assignable() {
		return nil, apperrors.Validation("invalid role", nil)
	}

	org, err := s.store.Repos().Organizations.Get(ctx, *id.OrgID)
	if err != nil {
		return nil, notFoundOr(err, "organization")
	}

	raw, hash, err := security.NewSecret(security.InviteSecretBytes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	now := s.now()
	invite := &model.InviteToken{
		ID:        uuid.New(),
		OrgID:     org.ID,
		CreatedBy: id.UserID,
		TokenHash: hash,
		Role:      role,
		ExpiresAt: now.Add(s.cfg.InviteTTL),
		CreatedAt: now,
	}
	if addr := model.NormalizeEmail(req.Email); addr != "" {
		invite.Email = &addr
	}
	if err := s.store.Repos().Invites.Create(ctx, invite); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to create invite: %w", err))
	}

	resp := &model.InviteResponse{Invite: invite, Token: raw, Link: s.inviteLink(raw)}
	if invite.Email != nil && s.mailer.Enabled() {
		if err := s.mailer.SendInvite(ctx, *invite.Email, org.Name, resp.Link); err != nil {
			log.Error().Err(err).Str("org_id", org.ID.String()).Msg("failed to send invite email")
		} else {
			resp.Mailed = true
		}
	}

	log.Info().
		Str("org_id", org.ID.String()).
		Str("invite_id", invite.ID.String()).
		Str("role", string(role)).
		Msg("invite created")
	return resp, nil
}

// AcceptInvite consumes the invite for the calling user, creating the
// membership when absent, and returns a token with the organization
// selected. Concurrent acceptances of one invite cannot both succeed.
func (s *Service) AcceptInvite(ctx context.Context, id *model.Identity, raw string) (*model.TokenResponse, error) {
	hash := security.HashSecret(strings.TrimSpace(raw))
	now := s.now()

	var orgID uuid.UUID
	err := s.store.WithTx(ctx, func(r *repository.Repositories) error {
		invite, err := r.Invites.GetByHash(ctx, hash)
		if err != nil {
			return notFoundOr(err, "invite")
		}
		if !invite.Usable(now) {
			return apperrors.Validation(ErrInviteUnusable.Error(), ErrInviteUnusable)
		}
		consumed, err := r.Invites.MarkUsed(ctx, invite.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume invite: %w", err)
		}
		if !consumed {
			return apperrors.Validation(ErrInviteUnusable.Error(), ErrInviteUnusable)
		}

		existing, err := r.Memberships.ListForUserInOrg(ctx, id.UserID, invite.OrgID)
		if err != nil {
			return fmt.Errorf("failed to get memberships: %w", err)
		}
		if len(existing) == 0 {
			m := &model.Membership{ID: uuid.New(), UserID: id.UserID, OrgID: invite.OrgID, Role: invite.Role, CreatedAt: now}
			if err := r.Memberships.Create(ctx, m); err != nil {
				return fmt.Errorf("failed to create membership: %w", err)
			}
		}
		orgID = invite.OrgID
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}

	user, err := s.user(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("org_id", orgID.String()).Str("user_id", id.UserID.String()).Msg("invite accepted")
	return s.tokens.IssueToken(user, &orgID)
}

// Dashboard returns the member view of the selected organization.
func (s *Service) Dashboard(ctx context.Context, id *model.Identity) (*model.Dashboard, error) {
	if err := s.authz.RequireOrgMember(ctx, id); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	org, err := repos.Organizations.Get(ctx, *id.OrgID)
	if err != nil {
		return nil, notFoundOr(err, "organization")
	}
	rows, err := repos.Memberships.ListForUserInOrg(ctx, id.UserID, org.ID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get memberships: %w", err))
	}
	roles := make([]model.Role, 0, len(rows))
	for _, m := range rows {
		roles = append(roles, m.Role)
	}
	return &model.Dashboard{Organization: org, Roles: roles}, nil
}

// Members lists the members of the selected organization.
func (s *Service) Members(ctx context.Context, id *model.Identity) ([]*model.MemberView, error) {
	if err := s.authz.RequireRole(ctx, id, model.RoleOrgAdmin); err != nil {
		return nil, err
	}
	members, err := s.store.Repos().Memberships.ListByOrg(ctx, *id.OrgID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list members: %w", err))
	}
	return members, nil
}

func (s *Service) inviteLink(raw string) string {
	return s.cfg.PublicURL + "/api/v1/org/invites/accept?token=" + url.QueryEscape(raw)
}

func (s *Service) user(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.store.Repos().Users.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(err)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
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
