package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

// Actor is the platform admin performing an operation.
type Actor struct {
	UserID    uuid.UUID
	IPAddress string
}

// Entry describes one privileged operation.
type Entry struct {
	Action  string
	OrgID   *uuid.UUID
	Payload interface{}
}

type Service struct {
	store repository.Store
	now   func() time.Time
}

func NewService(store repository.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes entry through repo, which must be bound to the transaction
// of the operation being audited. Any failure is an invariant violation so
// the caller's transaction rolls back.
func (s *Service) Record(ctx context.Context, repo repository.AuditRepository, actor Actor, entry Entry) error {
	payload, err := model.MarshalRaw(entry.Payload)
	if err != nil {
		return apperrors.InvariantViolation("audit log could not be written", fmt.Errorf("failed to encode audit payload: %w", err))
	}

	record := &model.AdminAuditLog{
		ID:          uuid.New(),
		AdminUserID: actor.UserID,
		Action:      entry.Action,
		OrgID:       entry.OrgID,
		Payload:     payload,
		IPAddress:   actor.IPAddress,
		CreatedAt:   s.now(),
	}
	if err := repo.Create(ctx, record); err != nil {
		return apperrors.InvariantViolation("audit log could not be written", fmt.Errorf("failed to create audit log: %w", err))
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter) ([]*model.AdminAuditLog, error) {
	logs, err := s.store.Repos().Audit.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list audit logs: %w", err))
	}
	return logs, nil
}
