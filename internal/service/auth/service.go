package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/pkg/auth"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	store  repository.Store
	jwtSvc auth.JWTService
	hasher security.PasswordHasher
	now    func() time.Time
}

func NewService(store repository.Store, jwtSvc auth.JWTService, hasher security.PasswordHasher) *Service {
	return &Service{
		store:  store,
		jwtSvc: jwtSvc,
		hasher: hasher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Login checks the password and issues an access token. When the user
// belongs to exactly one organization it is selected in the token.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	repos := s.store.Repos()

	user, err := repos.Users.GetByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get user: %w", err))
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		log.Info().Str("user_id", user.ID.String()).Msg("login rejected")
		return nil, apperrors.Unauthorized(ErrInvalidCredentials)
	}

	if err := repos.Users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to update last login: %w", err))
	}

	orgs, err := repos.Organizations.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list organizations: %w", err))
	}
	var orgID *uuid.UUID
	if len(orgs) == 1 {
		id := orgs[0].ID
		orgID = &id
	}

	return s.IssueToken(user, orgID)
}

// IssueToken signs an access token for user with orgID selected.
func (s *Service) IssueToken(user *model.User, orgID *uuid.UUID) (*model.TokenResponse, error) {
	token, ttl, err := s.jwtSvc.GenerateAccessToken(user, orgID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate token: %w", err))
	}
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		OrgID:       orgID,
	}, nil
}

// Authenticate resolves a bearer token to the request identity.
func (s *Service) Authenticate(token string) (*model.Identity, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims.Identity(), nil
}

// User returns the user behind an identity.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.store.Repos().Users.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized(err)
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
}
