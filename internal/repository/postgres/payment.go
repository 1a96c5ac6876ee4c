package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

const paymentColumns = `id, org_id, plan, provider_payment_id, amount_cents, status,
	qr_code_base64, pix_copy_paste, created_at, paid_at`

func (r *paymentRepository) Create(ctx context.Context, p *model.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (
			id, org_id, plan, provider_payment_id, amount_cents, status,
			qr_code_base64, pix_copy_paste, created_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.OrgID,
		p.Plan,
		p.ProviderPaymentID,
		p.Amount,
		p.Status,
		p.QRCode,
		p.PixCopyPaste,
		p.CreatedAt,
		p.PaidAt,
	); err != nil {
		return createErr("payment attempt", err)
	}
	return nil
}

func (r *paymentRepository) GetByProviderID(ctx context.Context, providerPaymentID string) (*model.PaymentAttempt, error) {
	var p model.PaymentAttempt
	query := `SELECT ` + paymentColumns + ` FROM payment_attempts WHERE provider_payment_id = $1`
	if err := r.get(ctx, &p, "payment attempt", query, providerPaymentID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) GetByProviderIDForUpdate(ctx context.Context, providerPaymentID string) (*model.PaymentAttempt, error) {
	var p model.PaymentAttempt
	query := `SELECT ` + paymentColumns + ` FROM payment_attempts WHERE provider_payment_id = $1 FOR UPDATE`
	if err := r.get(ctx, &p, "payment attempt", query, providerPaymentID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *model.PaymentAttempt) error {
	query := `
		UPDATE payment_attempts
		SET status = $1, paid_at = $2
		WHERE id = $3
	`
	return r.execOne(ctx, "payment attempt", query, p.Status, p.PaidAt, p.ID)
}

func (r *paymentRepository) LatestForOrg(ctx context.Context, orgID uuid.UUID) (*model.PaymentAttempt, error) {
	var p model.PaymentAttempt
	query := `SELECT ` + paymentColumns + `
		FROM payment_attempts
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	if err := r.get(ctx, &p, "payment attempt", query, orgID); err != nil {
		return nil, err
	}
	return &p, nil
}
