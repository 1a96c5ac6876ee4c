// Package memory is a mutex-guarded, in-process implementation of the
// repositories. Transactions run against a copy of the data that replaces
// the live data only when the unit of work succeeds.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
)

type state struct {
	users       map[uuid.UUID]model.User
	orgs        map[uuid.UUID]model.Organization
	subs        map[uuid.UUID]model.Subscription // keyed by org id
	payments    map[uuid.UUID]model.PaymentAttempt
	memberships map[uuid.UUID]model.Membership
	invites     map[uuid.UUID]model.InviteToken
	audit       []model.AdminAuditLog
	outbox      []model.OutboxEvent
}

func newState() *state {
	return &state{
		users:       map[uuid.UUID]model.User{},
		orgs:        map[uuid.UUID]model.Organization{},
		subs:        map[uuid.UUID]model.Subscription{},
		payments:    map[uuid.UUID]model.PaymentAttempt{},
		memberships: map[uuid.UUID]model.Membership{},
		invites:     map[uuid.UUID]model.InviteToken{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.invites {
		c.invites[k] = v
	}
	c.audit = append(c.audit, s.audit...)
	c.outbox = append(c.outbox, s.outbox...)
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	data  *state
	repos *repository.Repositories
}

func NewStore() *Store {
	s := &Store{data: newState()}
	s.repos = s.bind(nil)
	return s
}

// bind returns repositories reading tx when it is set, or the live data
// under the store lock otherwise.
func (s *Store) bind(tx *state) *repository.Repositories {
	a := &access{store: s, tx: tx}
	return &repository.Repositories{
		Users:         &userRepository{a},
		Organizations: &organizationRepository{a},
		Subscriptions: &subscriptionRepository{a},
		Payments:      &paymentRepository{a},
		Memberships:   &membershipRepository{a},
		Invites:       &inviteRepository{a},
		Audit:         &auditRepository{a},
		Outbox:        &outboxRepository{a},
	}
}

func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// WithTx serialises units of work. Repositories from Repos() must not be
// used inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(*repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	work := s.data.clone()
	if err := fn(s.bind(work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

type access struct {
	store *Store
	tx    *state
}

// with runs fn against the bound data, locking only outside a transaction.
func (a *access) with(fn func(*state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.data)
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
}

func duplicate(what string) error {
	return fmt.Errorf("%s: %w", what, repository.ErrDuplicate)
}
