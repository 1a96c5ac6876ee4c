package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository/memory"
	"github.com/jwalitptl/tenant-billing/pkg/auth"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

type harness struct {
	store  *memory.Store
	svc    *Service
	jwtSvc auth.JWTService
	user   *model.User
}

func setup(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	jwtSvc, err := auth.NewJWTService("test-secret", "tenant-billing", time.Hour)
	require.NoError(t, err)

	hash, err := hasher.Hash("correct-horse")
	require.NoError(t, err)
	user := &model.User{ID: uuid.New(), Email: "ana@example.com", Name: "Ana", PasswordHash: hash}
	require.NoError(t, store.Repos().Users.Create(context.Background(), user))

	return &harness{store: store, svc: NewService(store, jwtSvc, hasher), jwtSvc: jwtSvc, user: user}
}

func (h *harness) addOrg(t *testing.T, slug string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	org := &model.Organization{ID: uuid.New(), Name: slug, Slug: slug, Plan: model.PlanPro, Status: model.StatusActive}
	require.NoError(t, h.store.Repos().Organizations.Create(ctx, org))
	require.NoError(t, h.store.Repos().Memberships.Create(ctx, &model.Membership{UserID: h.user.ID, OrgID: org.ID, Role: model.RoleOrgUser}))
	return org.ID
}

func TestLogin_AutoSelectsSingleOrganization(t *testing.T) {
	h := setup(t)
	orgID := h.addOrg(t, "acme")

	resp, err := h.svc.Login(context.Background(), "  ANA@example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	require.NotNil(t, resp.OrgID)
	assert.Equal(t, orgID, *resp.OrgID)

	claims, err := h.jwtSvc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, claims.UserID)
	require.NotNil(t, claims.OrgID)
	assert.Equal(t, orgID, *claims.OrgID)

	user, err := h.store.Repos().Users.Get(context.Background(), h.user.ID)
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)
}

func TestLogin_NoSelectionWithSeveralOrganizations(t *testing.T) {
	h := setup(t)
	h.addOrg(t, "acme")
	h.addOrg(t, "globex")

	resp, err := h.svc.Login(context.Background(), "ana@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Nil(t, resp.OrgID)
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	h := setup(t)

	_, err := h.svc.Login(context.Background(), "ana@example.com", "wrong-password")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	_, err = h.svc.Login(context.Background(), "nobody@example.com", "correct-horse")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestAuthenticate(t *testing.T) {
	h := setup(t)
	orgID := h.addOrg(t, "acme")

	resp, err := h.svc.IssueToken(h.user, &orgID)
	require.NoError(t, err)

	id, err := h.svc.Authenticate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, id.UserID)
	assert.Equal(t, "ana@example.com", id.Email)
	assert.True(t, id.HasOrg())

	_, err = h.svc.Authenticate("not-a-token")
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}
