package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type membershipRepository struct {
	BaseRepository
}

func NewMembershipRepository(base BaseRepository) repository.MembershipRepository {
	return &membershipRepository{base}
}

func (r *membershipRepository) Create(ctx context.Context, m *model.Membership) error {
	query := `
		INSERT INTO memberships (id, user_id, org_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.UserID, m.OrgID, m.Role, m.CreatedAt); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (r *membershipRepository) Get(ctx context.Context, id uuid.UUID) (*model.Membership, error) {
	var m model.Membership
	query := `SELECT id, user_id, org_id, role, created_at FROM memberships WHERE id = $1`
	if err := r.get(ctx, &m, "membership", query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepository) ListForUserInOrg(ctx context.Context, userID, orgID uuid.UUID) ([]*model.Membership, error) {
	query := `
		SELECT id, user_id, org_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND org_id = $2
		ORDER BY created_at ASC
	`
	ms := []*model.Membership{}
	if err := r.selectAll(ctx, &ms, "memberships", query, userID, orgID); err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *membershipRepository) HasRoleAnywhere(ctx context.Context, userID uuid.UUID, role model.Role) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND role = $2)`
	if err := r.get(ctx, &exists, "membership role", query, userID, role); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *membershipRepository) AnyWithRole(ctx context.Context, role model.Role) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM memberships WHERE role = $1)`
	if err := r.get(ctx, &exists, "membership role", query, role); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *membershipRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.MemberView, error) {
	query := `
		SELECT m.id, m.user_id, m.org_id, m.role, m.created_at, u.email, u.name
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.org_id = $1
		ORDER BY m.created_at ASC
	`
	members := []*model.MemberView{}
	if err := r.selectAll(ctx, &members, "members", query, orgID); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.execOne(ctx, "membership", `UPDATE memberships SET role = $1 WHERE id = $2`, role, id)
}
