package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type inviteRepository struct {
	BaseRepository
}

func NewInviteRepository(base BaseRepository) repository.InviteRepository {
	return &inviteRepository{base}
}

func (r *inviteRepository) Create(ctx context.Context, inv *model.InviteToken) error {
	query := `
		INSERT INTO invite_tokens (
			id, org_id, created_by, email, token_hash, role, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.OrgID,
		inv.CreatedBy,
		inv.Email,
		inv.TokenHash,
		inv.Role,
		inv.ExpiresAt,
		inv.CreatedAt,
	); err != nil {
		return createErr("invite", err)
	}
	return nil
}

func (r *inviteRepository) GetByHash(ctx context.Context, tokenHash string) (*model.InviteToken, error) {
	query := `
		SELECT id, org_id, created_by, email, token_hash, role, expires_at, used_at, created_at
		FROM invite_tokens
		WHERE token_hash = $1
	`
	var inv model.InviteToken
	if err := r.get(ctx, &inv, "invite", query, tokenHash); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *inviteRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `UPDATE invite_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark invite used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}
