package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestPaymentRepository_GetByProviderID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(NewBaseRepository(db))
	ctx := context.Background()

	id, orgID := uuid.New(), uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "org_id", "plan", "provider_payment_id", "amount_cents", "status",
		"qr_code_base64", "pix_copy_paste", "created_at", "paid_at"}

	mock.ExpectQuery(`SELECT .+ FROM payment_attempts WHERE provider_payment_id = \$1`).
		WithArgs("5001").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(id.String(), orgID.String(), "PRO", "5001", int64(4990), "pending", nil, "000201", created, nil))

	p, err := repo.GetByProviderID(ctx, "5001")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, model.PlanPro, p.Plan)
	assert.Equal(t, model.Cents(4990), p.Amount)
	assert.Equal(t, model.PaymentPending, p.Status)
	require.NotNil(t, p.PixCopyPaste)
	assert.Equal(t, "000201", *p.PixCopyPaste)
	assert.Nil(t, p.QRCode)
	assert.Nil(t, p.PaidAt)

	mock.ExpectQuery(`SELECT .+ FROM payment_attempts WHERE provider_payment_id = \$1`).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err = repo.GetByProviderID(ctx, "404")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_UpdateMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(NewBaseRepository(db))

	mock.ExpectExec(`UPDATE payment_attempts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &model.PaymentAttempt{ID: uuid.New(), Status: model.PaymentApproved})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolation(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(NewBaseRepository(db))
	providerID := "5001"

	mock.ExpectExec(`INSERT INTO payment_attempts`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), &model.PaymentAttempt{
		OrgID:             uuid.New(),
		Plan:              model.PlanPro,
		ProviderPaymentID: &providerID,
		Amount:            model.PlanPro.Price(),
		Status:            model.PaymentPending,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	mock.ExpectExec(`INSERT INTO payment_attempts`).
		WillReturnError(errors.New("connection reset"))
	err = repo.Create(context.Background(), &model.PaymentAttempt{OrgID: uuid.New()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteRepository_MarkUsedIsConditional(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInviteRepository(NewBaseRepository(db))
	ctx := context.Background()
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE invite_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE invite_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkUsed(ctx, id, at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkUsed(ctx, id, at)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payment_attempts`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithTx(ctx, func(r *repository.Repositories) error {
			return r.Payments.Update(ctx, &model.PaymentAttempt{ID: uuid.New(), Status: model.PaymentApproved})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the unit fails", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payment_attempts`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO admin_audit_logs`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(r *repository.Repositories) error {
			if err := r.Payments.Update(ctx, &model.PaymentAttempt{ID: uuid.New()}); err != nil {
				return err
			}
			return r.Audit.Create(ctx, &model.AdminAuditLog{Action: model.AuditActionBillingOverride})
		})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLockingReads(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	store := NewStore(db)

	orgID, subID, paymentID := uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	periodEnd := now.Add(-4 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM organizations WHERE id = \$1 FOR UPDATE`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "plan", "status", "created_at", "updated_at"}).
			AddRow(orgID.String(), "Acme", "acme", "PRO", "past_due", now, now))
	mock.ExpectQuery(`SELECT .+ FROM subscriptions\s+WHERE org_id = \$1 FOR UPDATE`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "plan", "status", "current_period_end", "created_at", "updated_at"}).
			AddRow(subID.String(), orgID.String(), "PRO", "past_due", periodEnd, now, now))
	mock.ExpectQuery(`SELECT .+ FROM payment_attempts WHERE provider_payment_id = \$1 FOR UPDATE`).
		WithArgs("5001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "plan", "provider_payment_id", "amount_cents", "status",
			"qr_code_base64", "pix_copy_paste", "created_at", "paid_at"}).
			AddRow(paymentID.String(), orgID.String(), "PRO", "5001", int64(4990), "pending", nil, nil, now, nil))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(r *repository.Repositories) error {
		org, err := r.Organizations.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		assert.Equal(t, model.StatusPastDue, org.Status)

		sub, err := r.Subscriptions.GetByOrgForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		require.NotNil(t, sub.CurrentPeriodEnd)
		assert.True(t, periodEnd.Equal(*sub.CurrentPeriodEnd))

		attempt, err := r.Payments.GetByProviderIDForUpdate(ctx, "5001")
		if err != nil {
			return err
		}
		assert.Equal(t, paymentID, attempt.ID)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockingReads_MissingSubscription(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(NewBaseRepository(db))
	orgID := uuid.New()

	mock.ExpectQuery(`FROM subscriptions\s+WHERE org_id = \$1 FOR UPDATE`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByOrgForUpdate(context.Background(), orgID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
