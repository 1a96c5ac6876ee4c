package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

func TestStore_WithTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme", Plan: model.PlanFree, Status: model.StatusActive}

	err := store.WithTx(ctx, func(r *repository.Repositories) error {
		return r.Organizations.Create(ctx, org)
	})
	require.NoError(t, err)

	got, err := store.Repos().Organizations.Get(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)
}

func TestStore_WithTxDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme", Status: model.StatusActive}
	require.NoError(t, store.Repos().Organizations.Create(ctx, org))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(r *repository.Repositories) error {
		o, err := r.Organizations.Get(ctx, org.ID)
		if err != nil {
			return err
		}
		o.Status = model.StatusBlocked
		if err := r.Organizations.Update(ctx, o); err != nil {
			return err
		}
		event, err := model.NewOutboxEvent(model.EventOrgStatusChanged, &o.ID, map[string]string{"status": "blocked"})
		if err != nil {
			return err
		}
		if err := r.Outbox.Create(ctx, event); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Repos().Organizations.Get(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	pending, err := store.Repos().Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_WithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().WithTx(ctx, func(*repository.Repositories) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestUserRepository_EmailIsUniqueAndNormalized(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Repos().Users

	require.NoError(t, users.Create(ctx, &model.User{Email: "  Ana@Example.com ", Name: "Ana"}))

	got, err := users.GetByEmail(ctx, "ana@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	err = users.Create(ctx, &model.User{Email: "ana@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	_, err = users.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPaymentRepository_LookupByProviderID(t *testing.T) {
	ctx := context.Background()
	payments := NewStore().Repos().Payments
	orgID := uuid.New()

	older := "1001"
	newer := "1002"
	require.NoError(t, payments.Create(ctx, &model.PaymentAttempt{
		OrgID: orgID, Plan: model.PlanPro, ProviderPaymentID: &older,
		Amount: model.PlanPro.Price(), Status: model.PaymentPending, CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, payments.Create(ctx, &model.PaymentAttempt{
		OrgID: orgID, Plan: model.PlanAgency, ProviderPaymentID: &newer,
		Amount: model.PlanAgency.Price(), Status: model.PaymentPending, CreatedAt: time.Now(),
	}))

	got, err := payments.GetByProviderID(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, got.Plan)

	latest, err := payments.LatestForOrg(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "1002", *latest.ProviderPaymentID)

	_, err = payments.GetByProviderID(ctx, "9999")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = payments.Create(ctx, &model.PaymentAttempt{OrgID: orgID, ProviderPaymentID: &older})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestInviteRepository_MarkUsedOnce(t *testing.T) {
	ctx := context.Background()
	invites := NewStore().Repos().Invites
	inv := &model.InviteToken{
		OrgID: uuid.New(), CreatedBy: uuid.New(), TokenHash: "hash",
		Role: model.RoleOrgUser, ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, invites.Create(ctx, inv))

	first, err := invites.MarkUsed(ctx, inv.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, first)

	second, err := invites.MarkUsed(ctx, inv.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, second)

	got, err := invites.GetByHash(ctx, "hash")
	require.NoError(t, err)
	assert.NotNil(t, got.UsedAt)
}

func TestOutboxRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	outbox := NewStore().Repos().Outbox

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		event, err := model.NewOutboxEvent(model.EventCheckoutCreated, nil, map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, outbox.Create(ctx, event))
		ids = append(ids, event.ID)
	}

	pending, err := outbox.GetPendingEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, outbox.MarkProcessed(ctx, ids[0]))
	require.NoError(t, outbox.MarkRetry(ctx, ids[1], "broker down", time.Now().Add(time.Hour)))
	require.NoError(t, outbox.MarkFailed(ctx, ids[2], "bad payload"))

	pending, err = outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	deleted, err := outbox.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	assert.ErrorIs(t, outbox.MarkProcessed(ctx, uuid.New()), repository.ErrNotFound)
}
