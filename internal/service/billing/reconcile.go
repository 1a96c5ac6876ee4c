package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

// Webhook outcomes, also used as metric labels.
const (
	WebhookIgnored        = "ignored"
	WebhookUnknownPayment = "unknown_payment"
	WebhookReconciled     = "reconciled"
	WebhookGatewayError   = "gateway_error"
	WebhookError          = "error"
)

// ReconcileResult describes what a notification did.
type ReconcileResult struct {
	Outcome           string
	ProviderPaymentID string
	OrgID             *uuid.UUID
	Status            model.PaymentStatus
	Ledger            Outcome
}

// ExtractPaymentID returns data.id, falling back to the top-level id.
// Numeric ids are rendered as plain integers; a number with a fractional
// part is not an id.
func ExtractPaymentID(body []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", false
	}

	if data, ok := doc["data"].(map[string]interface{}); ok {
		if id := idString(data["id"]); id != "" {
			return id, true
		}
	}
	if id := idString(doc["id"]); id != "" {
		return id, true
	}
	return "", false
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		if _, err := id.Int64(); err == nil {
			return id.String()
		}
		f, ok := new(big.Float).SetPrec(256).SetString(id.String())
		if !ok || !f.IsInt() {
			return ""
		}
		return f.Text('f', 0)
	default:
		return ""
	}
}

// Reconcile turns a verified notification into ledger transitions. The
// status carried by the notification is never used: the provider is asked
// for the authoritative one. Unknown or irrelevant notifications are
// acknowledged without error. A gateway failure returns GatewayUnavailable
// and persists nothing.
func (s *Service) Reconcile(ctx context.Context, body []byte) (*ReconcileResult, error) {
	paymentID, ok := ExtractPaymentID(body)
	if !ok {
		log.Info().Msg("webhook without payment id ignored")
		return &ReconcileResult{Outcome: WebhookIgnored}, nil
	}
	result := &ReconcileResult{ProviderPaymentID: paymentID}

	attempt, err := s.store.Repos().Payments.GetByProviderID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info().Str("provider_payment_id", paymentID).Msg("webhook for unknown payment ignored")
		result.Outcome = WebhookUnknownPayment
		return result, nil
	}
	if err != nil {
		result.Outcome = WebhookError
		return result, apperrors.Internal(fmt.Errorf("failed to get payment attempt: %w", err))
	}
	orgID := attempt.OrgID
	result.OrgID = &orgID

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		log.Error().Err(err).
			Str("provider_payment_id", paymentID).
			Str("org_id", orgID.String()).
			Msg("failed to query payment status")
		result.Outcome = WebhookGatewayError
		return result, gatewayError(err, "payment provider unavailable")
	}
	status := model.NormalizePaymentStatus(payment.Status)
	result.Status = status

	now := s.now()
	var from, to model.BillingStatus
	err = s.store.WithTx(ctx, func(r *repository.Repositories) error {
		org, sub, err := lockBilling(ctx, r, orgID)
		if err != nil {
			return err
		}
		attempt, err := r.Payments.GetByProviderIDForUpdate(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "payment")
		}
		if attempt.OrgID != orgID {
			return apperrors.InvariantViolation("payment attempt changed organization", nil)
		}

		from = org.Status
		previous := attempt.Status
		sub, result.Ledger = s.ledger.ApplyConfirmation(org, sub, attempt, status, now)
		to = org.Status

		if err := r.Payments.Update(ctx, attempt); err != nil {
			return fmt.Errorf("failed to update payment attempt: %w", err)
		}

		switch result.Ledger {
		case OutcomeActivated, OutcomeFailed:
			if sub != nil {
				if err := r.Subscriptions.Upsert(ctx, sub); err != nil {
					return fmt.Errorf("failed to save subscription: %w", err)
				}
			}
			if err := r.Organizations.Update(ctx, org); err != nil {
				return fmt.Errorf("failed to update organization: %w", err)
			}
			eventType := model.EventPaymentApproved
			if result.Ledger == OutcomeFailed {
				eventType = model.EventPaymentFailed
			}
			return appendEvent(ctx, r, eventType, org, attempt, now)
		default:
			if previous == status {
				return nil
			}
			return appendEvent(ctx, r, model.EventPaymentUpdated, org, attempt, now)
		}
	})
	if err != nil {
		result.Outcome = WebhookError
		return result, asAppError(err)
	}

	result.Outcome = WebhookReconciled
	s.metrics.ObserveTransition("webhook", string(from), string(to))
	log.Info().
		Str("provider_payment_id", paymentID).
		Str("org_id", orgID.String()).
		Str("status", string(status)).
		Str("ledger", string(result.Ledger)).
		Str("org_status", string(to)).
		Msg("payment reconciled")
	return result, nil
}
