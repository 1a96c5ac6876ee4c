package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type organizationRepository struct {
	BaseRepository
}

func NewOrganizationRepository(base BaseRepository) repository.OrganizationRepository {
	return &organizationRepository{base}
}

const organizationColumns = `id, name, slug, plan, status, created_at, updated_at`

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) error {
	query := `
		INSERT INTO organizations (
			id, name, slug, plan, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	org.UpdatedAt = now

	if _, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.Plan,
		org.Status,
		org.CreatedAt,
		org.UpdatedAt,
	); err != nil {
		return createErr("organization", err)
	}
	return nil
}

func (r *organizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	if err := r.get(ctx, &org, "organization", query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1 FOR UPDATE`
	if err := r.get(ctx, &org, "organization", query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) GetBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	var org model.Organization
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1`
	if err := r.get(ctx, &org, "organization", query, slug); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) Update(ctx context.Context, org *model.Organization) error {
	query := `
		UPDATE organizations
		SET plan = $1, status = $2, updated_at = $3
		WHERE id = $4
	`
	org.UpdatedAt = time.Now().UTC()
	return r.execOne(ctx, "organization", query, org.Plan, org.Status, org.UpdatedAt, org.ID)
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	orgs := []*model.Organization{}
	query := `SELECT ` + organizationColumns + ` FROM organizations ORDER BY created_at DESC`
	if err := r.selectAll(ctx, &orgs, "organizations", query); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *organizationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.OrgMembership, error) {
	query := `
		SELECT DISTINCT ON (o.id)
			o.id, o.name, o.slug, o.plan, o.status, o.created_at, o.updated_at, m.role
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.id, m.created_at ASC
	`
	orgs := []*model.OrgMembership{}
	if err := r.selectAll(ctx, &orgs, "user organizations", query, userID); err != nil {
		return nil, err
	}
	return orgs, nil
}
