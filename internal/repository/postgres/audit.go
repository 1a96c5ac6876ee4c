package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AdminAuditLog) error {
	query := `
		INSERT INTO admin_audit_logs (
			id, admin_user_id, action, org_id, payload, ip_address, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AdminUserID,
		entry.Action,
		entry.OrgID,
		entry.Payload,
		entry.IPAddress,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AdminAuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, admin_user_id, action, org_id, payload, ip_address, created_at
		FROM admin_audit_logs
		WHERE ($1::uuid IS NULL OR org_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	logs := []*model.AdminAuditLog{}
	if err := r.selectAll(ctx, &logs, "audit logs", query, filter.OrgID, limit); err != nil {
		return nil, err
	}
	return logs, nil
}
