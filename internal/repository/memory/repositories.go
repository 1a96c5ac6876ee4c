package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

type userRepository struct{ *access }

func (r *userRepository) Create(_ context.Context, user *model.User) error {
	return r.with(func(s *state) error {
		user.Email = model.NormalizeEmail(user.Email)
		for _, u := range s.users {
			if u.Email == user.Email {
				return duplicate("user")
			}
		}
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		s.users[user.ID] = *user
		return nil
	})
}

func (r *userRepository) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	var out model.User
	err := r.with(func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return notFound("user")
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	var out model.User
	err := r.with(func(s *state) error {
		for _, u := range s.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return notFound("user")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepository) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.with(func(s *state) error {
		u, ok := s.users[id]
		if !ok {
			return notFound("user")
		}
		u.LastLoginAt = &at
		s.users[id] = u
		return nil
	})
}

type organizationRepository struct{ *access }

func (r *organizationRepository) Create(_ context.Context, org *model.Organization) error {
	return r.with(func(s *state) error {
		for _, o := range s.orgs {
			if o.Slug == org.Slug {
				return duplicate("organization")
			}
		}
		if org.ID == uuid.Nil {
			org.ID = uuid.New()
		}
		now := time.Now().UTC()
		org.CreatedAt = now
		org.UpdatedAt = now
		s.orgs[org.ID] = *org
		return nil
	})
}

func (r *organizationRepository) Get(_ context.Context, id uuid.UUID) (*model.Organization, error) {
	var out model.Organization
	err := r.with(func(s *state) error {
		o, ok := s.orgs[id]
		if !ok {
			return notFound("organization")
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is Get: transactions already hold the store lock.
func (r *organizationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	return r.Get(ctx, id)
}

func (r *organizationRepository) GetBySlug(_ context.Context, slug string) (*model.Organization, error) {
	var out model.Organization
	err := r.with(func(s *state) error {
		for _, o := range s.orgs {
			if o.Slug == slug {
				out = o
				return nil
			}
		}
		return notFound("organization")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *organizationRepository) Update(_ context.Context, org *model.Organization) error {
	return r.with(func(s *state) error {
		o, ok := s.orgs[org.ID]
		if !ok {
			return notFound("organization")
		}
		o.Plan = org.Plan
		o.Status = org.Status
		o.UpdatedAt = time.Now().UTC()
		org.UpdatedAt = o.UpdatedAt
		s.orgs[org.ID] = o
		return nil
	})
}

func (r *organizationRepository) List(_ context.Context) ([]*model.Organization, error) {
	out := []*model.Organization{}
	_ = r.with(func(s *state) error {
		for _, o := range s.orgs {
			o := o
			out = append(out, &o)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *organizationRepository) ListForUser(_ context.Context, userID uuid.UUID) ([]*model.OrgMembership, error) {
	out := []*model.OrgMembership{}
	_ = r.with(func(s *state) error {
		ms := membershipsSorted(s)
		seen := map[uuid.UUID]bool{}
		for _, m := range ms {
			if m.UserID != userID || seen[m.OrgID] {
				continue
			}
			o, ok := s.orgs[m.OrgID]
			if !ok {
				continue
			}
			seen[m.OrgID] = true
			out = append(out, &model.OrgMembership{Organization: o, Role: m.Role})
		}
		return nil
	})
	return out, nil
}

type subscriptionRepository struct{ *access }

func (r *subscriptionRepository) GetByOrg(_ context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	var out model.Subscription
	err := r.with(func(s *state) error {
		sub, ok := s.subs[orgID]
		if !ok {
			return notFound("subscription")
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *subscriptionRepository) GetByOrgForUpdate(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	return r.GetByOrg(ctx, orgID)
}

func (r *subscriptionRepository) Upsert(_ context.Context, sub *model.Subscription) error {
	return r.with(func(s *state) error {
		now := time.Now().UTC()
		if existing, ok := s.subs[sub.OrgID]; ok {
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
		} else {
			if sub.ID == uuid.Nil {
				sub.ID = uuid.New()
			}
			sub.CreatedAt = now
		}
		sub.UpdatedAt = now
		s.subs[sub.OrgID] = *sub
		return nil
	})
}

type paymentRepository struct{ *access }

func (r *paymentRepository) Create(_ context.Context, p *model.PaymentAttempt) error {
	return r.with(func(s *state) error {
		if p.ProviderPaymentID != nil {
			for _, existing := range s.payments {
				if existing.ProviderPaymentID != nil && *existing.ProviderPaymentID == *p.ProviderPaymentID {
					return duplicate("payment attempt")
				}
			}
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		s.payments[p.ID] = *p
		return nil
	})
}

func (r *paymentRepository) GetByProviderID(_ context.Context, providerPaymentID string) (*model.PaymentAttempt, error) {
	var out model.PaymentAttempt
	err := r.with(func(s *state) error {
		for _, p := range s.payments {
			if p.ProviderPaymentID != nil && *p.ProviderPaymentID == providerPaymentID {
				out = p
				return nil
			}
		}
		return notFound("payment attempt")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *paymentRepository) GetByProviderIDForUpdate(ctx context.Context, providerPaymentID string) (*model.PaymentAttempt, error) {
	return r.GetByProviderID(ctx, providerPaymentID)
}

func (r *paymentRepository) Update(_ context.Context, p *model.PaymentAttempt) error {
	return r.with(func(s *state) error {
		existing, ok := s.payments[p.ID]
		if !ok {
			return notFound("payment attempt")
		}
		existing.Status = p.Status
		existing.PaidAt = p.PaidAt
		s.payments[p.ID] = existing
		return nil
	})
}

func (r *paymentRepository) LatestForOrg(_ context.Context, orgID uuid.UUID) (*model.PaymentAttempt, error) {
	var out *model.PaymentAttempt
	_ = r.with(func(s *state) error {
		for _, p := range s.payments {
			if p.OrgID != orgID {
				continue
			}
			if out == nil || p.CreatedAt.After(out.CreatedAt) {
				p := p
				out = &p
			}
		}
		return nil
	})
	if out == nil {
		return nil, notFound("payment attempt")
	}
	return out, nil
}

type membershipRepository struct{ *access }

func membershipsSorted(s *state) []model.Membership {
	ms := make([]model.Membership, 0, len(s.memberships))
	for _, m := range s.memberships {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
	return ms
}

func (r *membershipRepository) Create(_ context.Context, m *model.Membership) error {
	return r.with(func(s *state) error {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		s.memberships[m.ID] = *m
		return nil
	})
}

func (r *membershipRepository) Get(_ context.Context, id uuid.UUID) (*model.Membership, error) {
	var out model.Membership
	err := r.with(func(s *state) error {
		m, ok := s.memberships[id]
		if !ok {
			return notFound("membership")
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *membershipRepository) ListForUserInOrg(_ context.Context, userID, orgID uuid.UUID) ([]*model.Membership, error) {
	out := []*model.Membership{}
	_ = r.with(func(s *state) error {
		for _, m := range membershipsSorted(s) {
			if m.UserID == userID && m.OrgID == orgID {
				m := m
				out = append(out, &m)
			}
		}
		return nil
	})
	return out, nil
}

func (r *membershipRepository) HasRoleAnywhere(_ context.Context, userID uuid.UUID, role model.Role) (bool, error) {
	found := false
	_ = r.with(func(s *state) error {
		for _, m := range s.memberships {
			if m.UserID == userID && m.Role == role {
				found = true
				break
			}
		}
		return nil
	})
	return found, nil
}

func (r *membershipRepository) AnyWithRole(_ context.Context, role model.Role) (bool, error) {
	found := false
	_ = r.with(func(s *state) error {
		for _, m := range s.memberships {
			if m.Role == role {
				found = true
				break
			}
		}
		return nil
	})
	return found, nil
}

func (r *membershipRepository) ListByOrg(_ context.Context, orgID uuid.UUID) ([]*model.MemberView, error) {
	out := []*model.MemberView{}
	_ = r.with(func(s *state) error {
		for _, m := range membershipsSorted(s) {
			if m.OrgID != orgID {
				continue
			}
			u := s.users[m.UserID]
			out = append(out, &model.MemberView{Membership: m, Email: u.Email, Name: u.Name})
		}
		return nil
	})
	return out, nil
}

func (r *membershipRepository) UpdateRole(_ context.Context, id uuid.UUID, role model.Role) error {
	return r.with(func(s *state) error {
		m, ok := s.memberships[id]
		if !ok {
			return notFound("membership")
		}
		m.Role = role
		s.memberships[id] = m
		return nil
	})
}

type inviteRepository struct{ *access }

func (r *inviteRepository) Create(_ context.Context, inv *model.InviteToken) error {
	return r.with(func(s *state) error {
		for _, existing := range s.invites {
			if existing.TokenHash == inv.TokenHash {
				return duplicate("invite")
			}
		}
		if inv.ID == uuid.Nil {
			inv.ID = uuid.New()
		}
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = time.Now().UTC()
		}
		s.invites[inv.ID] = *inv
		return nil
	})
}

func (r *inviteRepository) GetByHash(_ context.Context, tokenHash string) (*model.InviteToken, error) {
	var out model.InviteToken
	err := r.with(func(s *state) error {
		for _, inv := range s.invites {
			if inv.TokenHash == tokenHash {
				out = inv
				return nil
			}
		}
		return notFound("invite")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *inviteRepository) MarkUsed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	consumed := false
	err := r.with(func(s *state) error {
		inv, ok := s.invites[id]
		if !ok {
			return notFound("invite")
		}
		if inv.UsedAt != nil {
			return nil
		}
		inv.UsedAt = &at
		s.invites[id] = inv
		consumed = true
		return nil
	})
	return consumed, err
}

type auditRepository struct{ *access }

func (r *auditRepository) Create(_ context.Context, entry *model.AdminAuditLog) error {
	return r.with(func(s *state) error {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		s.audit = append(s.audit, *entry)
		return nil
	})
}

func (r *auditRepository) List(_ context.Context, filter model.AuditFilter) ([]*model.AdminAuditLog, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []*model.AdminAuditLog{}
	_ = r.with(func(s *state) error {
		for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
			e := s.audit[i]
			if filter.OrgID != nil && (e.OrgID == nil || *e.OrgID != *filter.OrgID) {
				continue
			}
			out = append(out, &e)
		}
		return nil
	})
	return out, nil
}

type outboxRepository struct{ *access }

func (r *outboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	return r.with(func(s *state) error {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		now := time.Now().UTC()
		event.CreatedAt = now
		event.UpdatedAt = now
		event.Status = model.OutboxStatusPending
		s.outbox = append(s.outbox, *event)
		return nil
	})
}

func (r *outboxRepository) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	out := []*model.OutboxEvent{}
	now := time.Now()
	_ = r.with(func(s *state) error {
		for _, e := range s.outbox {
			if len(out) >= limit {
				break
			}
			if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
				continue
			}
			if e.RetryAt != nil && e.RetryAt.After(now) {
				continue
			}
			e := e
			out = append(out, &e)
		}
		return nil
	})
	return out, nil
}

func (r *outboxRepository) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	return r.with(func(s *state) error {
		for i := range s.outbox {
			if s.outbox[i].ID == id {
				fn(&s.outbox[i])
				s.outbox[i].UpdatedAt = time.Now().UTC()
				return nil
			}
		}
		return notFound("outbox event")
	})
}

func (r *outboxRepository) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent) {
		now := time.Now().UTC()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
}

func (r *outboxRepository) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryAt = &retryAt
		e.RetryCount++
	})
}

func (r *outboxRepository) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r *outboxRepository) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.with(func(s *state) error {
		kept := s.outbox[:0]
		for _, e := range s.outbox {
			if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		s.outbox = kept
		return nil
	})
	return n, err
}
