package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

var (
	// ErrNotFound is returned by every repository when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	OrganizationRepository interface {
		Create(ctx context.Context, org *model.Organization) error
		Get(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		GetBySlug(ctx context.Context, slug string) (*model.Organization, error)
		// GetForUpdate locks the row until the transaction ends. Billing
		// transitions lock the organization before its subscription and
		// payment attempts.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		// Update persists plan and status.
		Update(ctx context.Context, org *model.Organization) error
		List(ctx context.Context) ([]*model.Organization, error)
		ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.OrgMembership, error)
	}

	SubscriptionRepository interface {
		GetByOrg(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error)
		GetByOrgForUpdate(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error)
		// Upsert creates the organization's subscription or replaces plan,
		// status and period end of the existing one.
		Upsert(ctx context.Context, sub *model.Subscription) error
	}

	PaymentRepository interface {
		Create(ctx context.Context, attempt *model.PaymentAttempt) error
		GetByProviderID(ctx context.Context, providerPaymentID string) (*model.PaymentAttempt, error)
		GetByProviderIDForUpdate(ctx context.Context, providerPaymentID string) (*model.PaymentAttempt, error)
		// Update persists status and paid_at.
		Update(ctx context.Context, attempt *model.PaymentAttempt) error
		LatestForOrg(ctx context.Context, orgID uuid.UUID) (*model.PaymentAttempt, error)
	}

	MembershipRepository interface {
		Create(ctx context.Context, m *model.Membership) error
		Get(ctx context.Context, id uuid.UUID) (*model.Membership, error)
		// ListForUserInOrg returns every row for the pair; duplicates are possible.
		ListForUserInOrg(ctx context.Context, userID, orgID uuid.UUID) ([]*model.Membership, error)
		HasRoleAnywhere(ctx context.Context, userID uuid.UUID, role model.Role) (bool, error)
		AnyWithRole(ctx context.Context, role model.Role) (bool, error)
		ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.MemberView, error)
		UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	}

	InviteRepository interface {
		Create(ctx context.Context, invite *model.InviteToken) error
		GetByHash(ctx context.Context, tokenHash string) (*model.InviteToken, error)
		// MarkUsed consumes the invite if it is still unused and reports
		// whether this call was the one that consumed it.
		MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AdminAuditLog) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AdminAuditLog, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		// DeleteProcessedBefore prunes delivered events and returns how many
		// rows were removed.
		DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Users         UserRepository
	Organizations OrganizationRepository
	Subscriptions SubscriptionRepository
	Payments      PaymentRepository
	Memberships   MembershipRepository
	Invites       InviteRepository
	Audit         AuditRepository
	Outbox        OutboxRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() *Repositories
	// WithTx runs fn against repositories bound to a single transaction.
	// Any error returned by fn rolls the whole unit back.
	WithTx(ctx context.Context, fn func(r *Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
