package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/tenant-billing/internal/repository"
)

// BaseRepository provides common functionality for all repositories. db is
// either the pool or a transaction.
type BaseRepository struct {
	db sqlx.ExtContext
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db sqlx.ExtContext) BaseRepository {
	return BaseRepository{db: db}
}

func (r *BaseRepository) get(ctx context.Context, dest interface{}, what, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, r.db, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
		}
		return fmt.Errorf("failed to get %s: %w", what, err)
	}
	return nil
}

func (r *BaseRepository) selectAll(ctx context.Context, dest interface{}, what, query string, args ...interface{}) error {
	if err := sqlx.SelectContext(ctx, r.db, dest, query, args...); err != nil {
		return fmt.Errorf("failed to list %s: %w", what, err)
	}
	return nil
}

// execOne runs a statement that must touch exactly one row.
func (r *BaseRepository) execOne(ctx context.Context, what, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return nil
}

const uniqueViolation = "23505"

// createErr maps unique violations to repository.ErrDuplicate.
func createErr(what string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, repository.ErrDuplicate)
	}
	return fmt.Errorf("failed to create %s: %w", what, err)
}

func newRepositories(db sqlx.ExtContext) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Users:         NewUserRepository(base),
		Organizations: NewOrganizationRepository(base),
		Subscriptions: NewSubscriptionRepository(base),
		Payments:      NewPaymentRepository(base),
		Memberships:   NewMembershipRepository(base),
		Invites:       NewInviteRepository(base),
		Audit:         NewAuditRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}

// Store is the postgres implementation of repository.Store.
type Store struct {
	db    *sqlx.DB
	repos *repository.Repositories
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, repos: newRepositories(db)}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// WithTx executes a function within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(*repository.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepositories(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
