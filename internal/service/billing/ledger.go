package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

const (
	DefaultPeriod = 30 * 24 * time.Hour
	DefaultGrace  = 3 * 24 * time.Hour
)

// Ledger holds the subscription state machine. Its methods mutate the
// records they are given and never touch storage.
type Ledger struct {
	Period time.Duration
	Grace  time.Duration
}

func NewLedger(period, grace time.Duration) Ledger {
	if period <= 0 {
		period = DefaultPeriod
	}
	if grace < 0 {
		grace = DefaultGrace
	}
	return Ledger{Period: period, Grace: grace}
}

// StatusAt is the status a period ending at periodEnd implies at now.
func (l Ledger) StatusAt(periodEnd, now time.Time) model.BillingStatus {
	switch {
	case !now.After(periodEnd):
		return model.StatusActive
	case !now.After(periodEnd.Add(l.Grace)):
		return model.StatusPastDue
	default:
		return model.StatusBlocked
	}
}

// severity orders statuses so expiry can only move them forward.
func severity(s model.BillingStatus) int {
	switch s {
	case model.StatusPastDue:
		return 1
	case model.StatusBlocked:
		return 2
	default:
		return 0
	}
}

func worse(a, b model.BillingStatus) model.BillingStatus {
	if severity(b) > severity(a) {
		return b
	}
	return a
}

// EvaluateExpiry downgrades sub and org when the period has lapsed and
// reports whether anything changed. Organizations without a subscription
// or without a period end are left alone.
func (l Ledger) EvaluateExpiry(org *model.Organization, sub *model.Subscription, now time.Time) bool {
	if sub == nil || sub.CurrentPeriodEnd == nil {
		return false
	}
	target := l.StatusAt(*sub.CurrentPeriodEnd, now)
	if target == model.StatusActive {
		return false
	}

	changed := false
	if next := worse(sub.Status, target); next != sub.Status {
		sub.Status = next
		sub.UpdatedAt = now
		changed = true
	}
	if next := worse(org.Status, target); next != org.Status {
		org.Status = next
		org.UpdatedAt = now
		changed = true
	}
	return changed
}

// ApplyCheckout forces the organization to past_due for a new charge and
// returns the subscription to persist, creating it when sub is nil.
func (l Ledger) ApplyCheckout(org *model.Organization, sub *model.Subscription, plan model.Plan, now time.Time) *model.Subscription {
	if sub == nil {
		sub = &model.Subscription{
			ID:        uuid.New(),
			OrgID:     org.ID,
			CreatedAt: now,
		}
	}
	sub.Plan = plan
	sub.Status = model.StatusPastDue
	sub.UpdatedAt = now

	org.Status = model.StatusPastDue
	org.UpdatedAt = now
	return sub
}

type Outcome string

const (
	// OutcomeActivated: payment approved, period renewed.
	OutcomeActivated Outcome = "activated"
	// OutcomeAlreadyActive: approval for an attempt that was already paid.
	OutcomeAlreadyActive Outcome = "already_active"
	OutcomeFailed        Outcome = "failed"
	// OutcomeRecorded: attempt status refreshed, ledger untouched.
	OutcomeRecorded Outcome = "recorded"
)

// ApplyConfirmation records the authoritative provider status on attempt
// and moves sub and org accordingly. sub may be nil; the returned
// subscription is the one to persist, or nil when there is none.
func (l Ledger) ApplyConfirmation(
	org *model.Organization,
	sub *model.Subscription,
	attempt *model.PaymentAttempt,
	status model.PaymentStatus,
	now time.Time,
) (*model.Subscription, Outcome) {
	alreadyPaid := attempt.Status.IsApproved() && attempt.PaidAt != nil
	attempt.Status = status

	switch {
	case status.IsApproved() && alreadyPaid:
		return sub, OutcomeAlreadyActive

	case status.IsApproved():
		paidAt := now
		attempt.PaidAt = &paidAt

		if sub == nil {
			sub = &model.Subscription{ID: uuid.New(), OrgID: org.ID, CreatedAt: now}
		}
		if attempt.Plan.Valid() {
			sub.Plan = attempt.Plan
		}
		periodEnd := now.Add(l.Period)
		sub.Status = model.StatusActive
		sub.CurrentPeriodEnd = &periodEnd
		sub.UpdatedAt = now

		org.Status = model.StatusActive
		if sub.Plan.Valid() {
			org.Plan = sub.Plan
		}
		org.UpdatedAt = now
		return sub, OutcomeActivated

	case status.IsFailure():
		if sub != nil {
			sub.Status = model.StatusPastDue
			sub.UpdatedAt = now
		}
		if !org.IsBlocked() {
			org.Status = model.StatusPastDue
			org.UpdatedAt = now
		}
		return sub, OutcomeFailed
	}

	return sub, OutcomeRecorded
}
