package admin

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/repository/memory"
	"github.com/jwalitptl/tenant-billing/internal/service/audit"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/security"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const period = 30 * 24 * time.Hour

type failingAuditRepo struct{ repository.AuditRepository }

func (failingAuditRepo) Create(context.Context, *model.AdminAuditLog) error {
	return errors.New("audit table unavailable")
}

// failingAuditStore breaks audit writes inside transactions only.
type failingAuditStore struct{ *memory.Store }

func (s failingAuditStore) WithTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	return s.Store.WithTx(ctx, func(r *repository.Repositories) error {
		broken := *r
		broken.Audit = failingAuditRepo{r.Audit}
		return fn(&broken)
	})
}

func newService(store repository.Store) *Service {
	svc := NewService(store, audit.NewService(store), security.NewBcryptHasher(bcrypt.MinCost), period)
	svc.now = func() time.Time { return t0 }
	return svc
}

var actor = audit.Actor{UserID: uuid.New(), IPAddress: "10.1.1.1"}

func createRequest() *model.CreateOrganizationRequest {
	return &model.CreateOrganizationRequest{
		Name:          "Acme Corp!",
		Plan:          "pro",
		AdminEmail:    "Owner@Acme.test",
		AdminPassword: "super-secret",
	}
}

func TestCreateOrganization(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	org, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.NoError(t, err)
	assert.Equal(t, "acme-corp", org.Slug)
	assert.Equal(t, model.PlanPro, org.Plan)
	assert.Equal(t, model.StatusActive, org.Status)

	sub, err := store.Repos().Subscriptions.GetByOrg(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, t0, *sub.CurrentPeriodEnd)

	user, err := store.Repos().Users.GetByEmail(ctx, "owner@acme.test")
	require.NoError(t, err)
	assert.Equal(t, defaultAdminName, user.Name)
	rows, err := store.Repos().Memberships.ListForUserInOrg(ctx, user.ID, org.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.RoleOrgAdmin, rows[0].Role)

	logs, err := svc.AuditLogs(ctx, &org.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionCreateOrg, logs[0].Action)
	assert.Equal(t, actor.UserID, logs[0].AdminUserID)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(logs[0].Payload, &payload))
	assert.Equal(t, "owner@acme.test", payload["admin_email"])

	// duplicate slug
	_, err = svc.CreateOrganization(ctx, actor, &model.CreateOrganizationRequest{Name: "acme   corp", AdminEmail: "owner@acme.test"})
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCreateOrganization_ReusesUserAndDefaultsToFree(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	_, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.NoError(t, err)

	org, err := svc.CreateOrganization(ctx, actor, &model.CreateOrganizationRequest{Name: "Second", AdminEmail: "owner@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, org.Plan)

	orgs, err := store.Repos().Organizations.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}

func TestCreateOrganization_Rejections(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	_, err := svc.CreateOrganization(ctx, actor, &model.CreateOrganizationRequest{Name: "Fresh", AdminEmail: "new@acme.test"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = svc.CreateOrganization(ctx, actor, &model.CreateOrganizationRequest{Name: "!!!", AdminEmail: "new@acme.test", AdminPassword: "long-enough"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	// nothing was left behind by the failed attempts
	orgs, err := store.Repos().Organizations.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}

func TestCreateOrganization_AuditFailureAborts(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	svc := newService(failingAuditStore{mem})

	_, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvariantViolation))

	orgs, err := mem.Repos().Organizations.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orgs)
	_, err = mem.Repos().Users.GetByEmail(ctx, "owner@acme.test")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestChangeMemberRole(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	org, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.NoError(t, err)
	members, err := svc.ListMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	m, err := svc.ChangeMemberRole(ctx, actor, org.ID, members[0].ID, "org_user")
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrgUser, m.Role)

	stored, err := store.Repos().Memberships.Get(ctx, members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOrgUser, stored.Role)

	_, err = svc.ChangeMemberRole(ctx, actor, uuid.New(), members[0].ID, "ORG_ADMIN")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = svc.ChangeMemberRole(ctx, actor, org.ID, members[0].ID, "PLATFORM_ADMIN")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	logs, err := svc.AuditLogs(ctx, &org.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, model.AuditActionChangeMemberRole, logs[0].Action)
}

func TestUpdateOrganization(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	org, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateOrganization(ctx, actor, org.ID, &model.UpdateOrganizationRequest{Status: "blocked"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, updated.Status)
	assert.Equal(t, model.PlanPro, updated.Plan)

	updated, err = svc.UpdateOrganization(ctx, actor, org.ID, &model.UpdateOrganizationRequest{Plan: "agency"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, updated.Status)
	assert.Equal(t, model.PlanAgency, updated.Plan)

	events, err := store.Repos().Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventOrgStatusChanged, events[0].EventType)

	_, err = svc.UpdateOrganization(ctx, actor, org.ID, &model.UpdateOrganizationRequest{Status: "frozen"})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	_, err = svc.UpdateOrganization(ctx, actor, uuid.New(), &model.UpdateOrganizationRequest{Status: "active"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOverrideBilling(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	org, err := svc.CreateOrganization(ctx, actor, createRequest())
	require.NoError(t, err)
	_, err = svc.UpdateOrganization(ctx, actor, org.ID, &model.UpdateOrganizationRequest{Status: "blocked"})
	require.NoError(t, err)

	svc.now = func() time.Time { return t0.Add(10 * 24 * time.Hour) }
	released, err := svc.OverrideBilling(ctx, actor, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, released.Status)

	sub, err := store.Repos().Subscriptions.GetByOrg(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, sub.Status)
	assert.Equal(t, t0.Add(10*24*time.Hour+period), *sub.CurrentPeriodEnd)

	logs, err := svc.AuditLogs(ctx, &org.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AuditActionBillingOverride, logs[0].Action)

	events, err := store.Repos().Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.EventBillingOverridden, events[len(events)-1].EventType)
}

func TestOverrideBilling_CreatesSubscription(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	org := &model.Organization{ID: uuid.New(), Name: "Legacy", Slug: "legacy", Plan: model.PlanAgency, Status: model.StatusBlocked}
	require.NoError(t, store.Repos().Organizations.Create(ctx, org))

	_, err := svc.OverrideBilling(ctx, actor, org.ID)
	require.NoError(t, err)

	sub, err := store.Repos().Subscriptions.GetByOrg(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanAgency, sub.Plan)
	assert.Equal(t, t0.Add(period), *sub.CurrentPeriodEnd)
}

func TestOverrideBilling_AuditFailureAborts(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	svc := newService(failingAuditStore{mem})

	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme", Plan: model.PlanPro, Status: model.StatusBlocked}
	require.NoError(t, mem.Repos().Organizations.Create(ctx, org))

	_, err := svc.OverrideBilling(ctx, actor, org.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvariantViolation))

	stored, err := mem.Repos().Organizations.Get(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, stored.Status)
	_, err = mem.Repos().Subscriptions.GetByOrg(ctx, org.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
