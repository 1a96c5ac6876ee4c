package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/repository/memory"
)

type txLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *txLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *txLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.calls
	l.calls = nil
	return out
}

type loggedOrgs struct {
	repository.OrganizationRepository
	log *txLog
}

func (r loggedOrgs) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	r.log.add("read organization")
	return r.OrganizationRepository.Get(ctx, id)
}

func (r loggedOrgs) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	r.log.add("lock organization")
	return r.OrganizationRepository.GetForUpdate(ctx, id)
}

type loggedSubs struct {
	repository.SubscriptionRepository
	log *txLog
}

func (r loggedSubs) GetByOrg(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	r.log.add("read subscription")
	return r.SubscriptionRepository.GetByOrg(ctx, orgID)
}

func (r loggedSubs) GetByOrgForUpdate(ctx context.Context, orgID uuid.UUID) (*model.Subscription, error) {
	r.log.add("lock subscription")
	return r.SubscriptionRepository.GetByOrgForUpdate(ctx, orgID)
}

type loggedPayments struct {
	repository.PaymentRepository
	log *txLog
}

func (r loggedPayments) GetByProviderID(ctx context.Context, id string) (*model.PaymentAttempt, error) {
	r.log.add("read payment")
	return r.PaymentRepository.GetByProviderID(ctx, id)
}

func (r loggedPayments) GetByProviderIDForUpdate(ctx context.Context, id string) (*model.PaymentAttempt, error) {
	r.log.add("lock payment")
	return r.PaymentRepository.GetByProviderIDForUpdate(ctx, id)
}

// loggedStore records the billing reads made inside transactions.
type loggedStore struct {
	*memory.Store
	log *txLog
}

func (s *loggedStore) WithTx(ctx context.Context, fn func(*repository.Repositories) error) error {
	return s.Store.WithTx(ctx, func(r *repository.Repositories) error {
		wrapped := *r
		wrapped.Organizations = loggedOrgs{r.Organizations, s.log}
		wrapped.Subscriptions = loggedSubs{r.Subscriptions, s.log}
		wrapped.Payments = loggedPayments{r.Payments, s.log}
		return fn(&wrapped)
	})
}

func TestTransitionsLockOrganizationFirst(t *testing.T) {
	ctx := context.Background()
	store := &loggedStore{Store: memory.NewStore(), log: &txLog{}}
	gateway := newFakeGateway()
	now := t0
	svc := NewService(store, gateway, testLedger(), WithClock(func() time.Time { return now }))

	org := &model.Organization{Name: "Acme", Slug: "acme", Plan: model.PlanPro, Status: model.StatusActive}
	require.NoError(t, store.Repos().Organizations.Create(ctx, org))

	view, err := svc.Checkout(ctx, org.ID, "a@b.test", "PRO")
	require.NoError(t, err)
	assert.Equal(t, []string{"lock organization", "lock subscription"}, store.log.take())

	id := *view.ProviderPaymentID
	gateway.set(id, "approved")
	_, err = svc.Reconcile(ctx, webhook(id))
	require.NoError(t, err)
	assert.Equal(t, []string{"lock organization", "lock subscription", "lock payment"}, store.log.take())

	now = t0.Add(31 * 24 * time.Hour)
	got, err := svc.EvaluateAccess(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPastDue, got.Status)
	assert.Equal(t, []string{"lock organization", "lock subscription"}, store.log.take())
}

func TestEvaluateAccess_KeepsConfirmedRenewal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.StatusPastDue, at(-4*24*time.Hour))

	view, err := h.svc.Checkout(ctx, h.org.ID, "a@b.test", "PRO")
	require.NoError(t, err)
	id := *view.ProviderPaymentID

	h.gateway.set(id, "approved")
	_, err = h.svc.Reconcile(ctx, webhook(id))
	require.NoError(t, err)

	org, err := h.svc.EvaluateAccess(ctx, h.org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, org.Status)

	sub, err := h.store.Repos().Subscriptions.GetByOrg(ctx, h.org.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, sub.Status)
	assert.Equal(t, t0.Add(DefaultPeriod), *sub.CurrentPeriodEnd)
}
