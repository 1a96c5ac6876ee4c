package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type subscriptionRepository struct {
	BaseRepository
}

func NewSubscriptionRepository(base BaseRepository) repository.SubscriptionRepository {
	return &subscriptionRepository{base}
}

const subscriptionSelect = `
		SELECT id, org_id, plan, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE org_id = $1`

func (r *subscriptionRepository) GetByOrg(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	return r.getByOrg(ctx, subscriptionSelect, orgID)
}

func (r *subscriptionRepository) GetByOrgForUpdate(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	return r.getByOrg(ctx, subscriptionSelect+` FOR UPDATE`, orgID)
}

func (r *subscriptionRepository) getByOrg(ctx context.Context, query string, orgID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	if err := r.get(ctx, &sub, "subscription", query, orgID); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, org_id, plan, status, current_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (org_id) DO UPDATE
		SET plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.UpdatedAt = time.Now().UTC()

	row := r.db.QueryRowxContext(ctx, query,
		sub.ID,
		sub.OrgID,
		sub.Plan,
		sub.Status,
		sub.CurrentPeriodEnd,
		sub.UpdatedAt,
	)
	if err := row.Scan(&sub.ID, &sub.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}
