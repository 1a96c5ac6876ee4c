package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/mercadopago"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
)

type Service struct {
	store   repository.Store
	gateway mercadopago.Gateway
	ledger  Ledger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store repository.Store, gateway mercadopago.Gateway, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		gateway: gateway,
		ledger:  ledger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes the state machine used by this service.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Overview returns the billing index for an organization.
func (s *Service) Overview(ctx context.Context, orgID uuid.UUID) (*model.BillingOverview, error) {
	repos := s.store.Repos()

	org, err := repos.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, notFoundOr(err, "organization")
	}
	sub, err := optionalSubscription(ctx, repos, orgID)
	if err != nil {
		return nil, err
	}
	last, err := repos.Payments.LatestForOrg(ctx, orgID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(fmt.Errorf("failed to get latest payment: %w", err))
	}

	return &model.BillingOverview{
		Organization: org,
		Subscription: sub,
		LastPayment:  last.View(),
		Plans:        model.PriceTable(),
	}, nil
}

// LatestPayment returns the most recent payment attempt of the organization.
func (s *Service) LatestPayment(ctx context.Context, orgID uuid.UUID) (*model.PaymentAttemptView, error) {
	last, err := s.store.Repos().Payments.LatestForOrg(ctx, orgID)
	if err != nil {
		return nil, notFoundOr(err, "payment")
	}
	return last.View(), nil
}

// Checkout creates a PIX charge for plan and forces the organization to
// past_due until the payment is confirmed. An empty plan means PRO.
func (s *Service) Checkout(ctx context.Context, orgID uuid.UUID, payerEmail, planName string) (*model.PaymentAttemptView, error) {
	plan := model.DefaultCheckoutPlan
	if planName != "" {
		p, ok := model.ParsePlan(planName)
		if !ok {
			return nil, apperrors.Validation("unknown plan", nil)
		}
		plan = p
	}
	if plan.Price() <= 0 {
		return nil, apperrors.Validation("plan does not require payment", nil)
	}

	org, err := s.store.Repos().Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, notFoundOr(err, "organization")
	}

	now := s.now()
	charge, err := s.gateway.CreateCharge(ctx, mercadopago.ChargeRequest{
		Amount:            plan.Price().Float(),
		Description:       fmt.Sprintf("Assinatura %s - %s", plan, org.Name),
		ExternalReference: fmt.Sprintf("org:%s:plan:%s:ts:%d", org.ID, plan, now.Unix()),
		PayerEmail:        payerEmail,
	})
	if err != nil {
		log.Error().Err(err).Str("org_id", orgID.String()).Str("plan", string(plan)).Msg("failed to create charge")
		return nil, gatewayError(err, "could not create the PIX charge, please try again")
	}

	status := model.NormalizePaymentStatus(charge.Status)
	if status == "" {
		status = model.PaymentPending
	}
	attempt := &model.PaymentAttempt{
		ID:                uuid.New(),
		OrgID:             org.ID,
		Plan:              plan,
		ProviderPaymentID: &charge.ID,
		Amount:            plan.Price(),
		Status:            status,
		QRCode:            nonEmpty(charge.QRCodeBase64),
		PixCopyPaste:      nonEmpty(charge.QRCode),
		CreatedAt:         now,
	}

	from := org.Status
	err = s.store.WithTx(ctx, func(r *repository.Repositories) error {
		org, sub, err := lockBilling(ctx, r, orgID)
		if err != nil {
			return err
		}
		from = org.Status

		sub = s.ledger.ApplyCheckout(org, sub, plan, now)

		if err := r.Payments.Create(ctx, attempt); err != nil {
			return fmt.Errorf("failed to create payment attempt: %w", err)
		}
		if err := r.Subscriptions.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := r.Organizations.Update(ctx, org); err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}
		return appendEvent(ctx, r, model.EventCheckoutCreated, org, attempt, now)
	})
	if err != nil {
		return nil, asAppError(err)
	}

	s.metrics.ObserveTransition("checkout", string(from), string(model.StatusPastDue))
	log.Info().
		Str("org_id", orgID.String()).
		Str("plan", string(plan)).
		Str("provider_payment_id", charge.ID).
		Str("status", string(status)).
		Msg("checkout created")
	return attempt.View(), nil
}

// EvaluateAccess applies lazy expiry to the organization and returns its
// current state. The write only happens when the status actually moves.
func (s *Service) EvaluateAccess(ctx context.Context, orgID uuid.UUID) (*model.Organization, error) {
	repos := s.store.Repos()
	org, err := repos.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, notFoundOr(err, "organization")
	}
	sub, err := optionalSubscription(ctx, repos, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	probe := *org
	if !s.ledger.EvaluateExpiry(&probe, sub, now) {
		return org, nil
	}

	var result *model.Organization
	err = s.store.WithTx(ctx, func(r *repository.Repositories) error {
		org, sub, err := lockBilling(ctx, r, orgID)
		if err != nil {
			return err
		}
		from := org.Status
		result = org
		if !s.ledger.EvaluateExpiry(org, sub, now) {
			return nil
		}
		if err := r.Subscriptions.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		if err := r.Organizations.Update(ctx, org); err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}
		if from != org.Status {
			s.metrics.ObserveTransition("expiry", string(from), string(org.Status))
			log.Info().
				Str("org_id", org.ID.String()).
				Str("from", string(from)).
				Str("to", string(org.Status)).
				Msg("billing period lapsed")
			return appendEvent(ctx, r, model.EventOrgStatusChanged, org, nil, now)
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}
	return result, nil
}

func optionalSubscription(ctx context.Context, r *repository.Repositories, orgID uuid.UUID) (*model.Subscription, error) {
	sub, err := r.Subscriptions.GetByOrg(ctx, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get subscription: %w", err))
	}
	return sub, nil
}

// lockBilling reads the organization and its subscription with row locks,
// organization first, so concurrent transitions of one organization are
// applied one after another instead of overwriting each other.
func lockBilling(ctx context.Context, r *repository.Repositories, orgID uuid.UUID) (*model.Organization, *model.Subscription, error) {
	org, err := r.Organizations.GetForUpdate(ctx, orgID)
	if err != nil {
		return nil, nil, notFoundOr(err, "organization")
	}
	sub, err := r.Subscriptions.GetByOrgForUpdate(ctx, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return org, nil, nil
	}
	if err != nil {
		return nil, nil, apperrors.Internal(fmt.Errorf("failed to get subscription: %w", err))
	}
	return org, sub, nil
}

func appendEvent(ctx context.Context, r *repository.Repositories, eventType string, org *model.Organization, attempt *model.PaymentAttempt, now time.Time) error {
	payload := model.BillingEvent{
		OrgID:      org.ID,
		Plan:       org.Plan,
		OrgStatus:  org.Status,
		OccurredAt: now,
	}
	if attempt != nil {
		id := attempt.ID
		payload.PaymentAttemptID = &id
		payload.Plan = attempt.Plan
		payload.PaymentStatus = attempt.Status
		payload.Amount = attempt.Amount.String()
		if attempt.ProviderPaymentID != nil {
			payload.ProviderPaymentID = *attempt.ProviderPaymentID
		}
	}

	orgID := org.ID
	event, err := model.NewOutboxEvent(eventType, &orgID, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	if err := r.Outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return nil
}

func gatewayError(err error, message string) error {
	if errors.Is(err, mercadopago.ErrNotConfigured) {
		return apperrors.GatewayUnavailable("payment provider is not configured", err)
	}
	return apperrors.GatewayUnavailable(message, err)
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return apperrors.Internal(fmt.Errorf("failed to get %s: %w", resource, err))
}

// asAppError keeps typed errors and wraps anything else as internal.
func asAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Internal(err)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
