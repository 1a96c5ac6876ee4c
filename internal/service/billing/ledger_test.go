package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLedger() Ledger {
	return NewLedger(DefaultPeriod, DefaultGrace)
}

func fixture(orgStatus model.BillingStatus, periodEnd *time.Time) (*model.Organization, *model.Subscription) {
	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme", Plan: model.PlanPro, Status: orgStatus}
	sub := &model.Subscription{ID: uuid.New(), OrgID: org.ID, Plan: model.PlanPro, Status: orgStatus, CurrentPeriodEnd: periodEnd}
	return org, sub
}

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func TestLedger_StatusAt(t *testing.T) {
	l := testLedger()
	end := t0

	tests := []struct {
		name string
		now  time.Time
		want model.BillingStatus
	}{
		{"well before end", end.Add(-10 * 24 * time.Hour), model.StatusActive},
		{"exactly at end", end, model.StatusActive},
		{"just after end", end.Add(time.Nanosecond), model.StatusPastDue},
		{"inside grace", end.Add(2 * 24 * time.Hour), model.StatusPastDue},
		{"exactly end of grace", end.Add(3 * 24 * time.Hour), model.StatusPastDue},
		{"just after grace", end.Add(3*24*time.Hour + time.Nanosecond), model.StatusBlocked},
		{"long after", end.Add(40 * 24 * time.Hour), model.StatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.StatusAt(end, tt.now))
		})
	}
}

func TestLedger_EvaluateExpiryMatchesStatusAt(t *testing.T) {
	l := testLedger()
	offsets := []time.Duration{
		-48 * time.Hour, 0, time.Second, 24 * time.Hour, 72 * time.Hour, 72*time.Hour + time.Second, 40 * 24 * time.Hour,
	}

	for _, off := range offsets {
		org, sub := fixture(model.StatusActive, at(0))
		now := t0.Add(off)
		l.EvaluateExpiry(org, sub, now)

		want := l.StatusAt(t0, now)
		assert.Equal(t, want, org.Status, "offset %s", off)
		assert.Equal(t, want, sub.Status, "offset %s", off)
	}
}

func TestLedger_EvaluateExpiryIsIdempotent(t *testing.T) {
	l := testLedger()
	for _, off := range []time.Duration{-time.Hour, time.Hour, 5 * 24 * time.Hour} {
		org, sub := fixture(model.StatusActive, at(0))
		now := t0.Add(off)

		l.EvaluateExpiry(org, sub, now)
		firstOrg, firstSub := org.Status, sub.Status

		changed := l.EvaluateExpiry(org, sub, now)
		assert.False(t, changed)
		assert.Equal(t, firstOrg, org.Status)
		assert.Equal(t, firstSub, sub.Status)
	}
}

func TestLedger_EvaluateExpiryWithoutSubscription(t *testing.T) {
	l := testLedger()
	org := &model.Organization{ID: uuid.New(), Status: model.StatusActive}

	assert.False(t, l.EvaluateExpiry(org, nil, t0.Add(1000*24*time.Hour)))
	assert.Equal(t, model.StatusActive, org.Status)

	_, sub := fixture(model.StatusActive, nil)
	assert.False(t, l.EvaluateExpiry(org, sub, t0))
}

func TestLedger_EvaluateExpiryNeverUpgrades(t *testing.T) {
	l := testLedger()

	// checkout forced past_due while the period is still running
	org, sub := fixture(model.StatusPastDue, at(10*24*time.Hour))
	assert.False(t, l.EvaluateExpiry(org, sub, t0))
	assert.Equal(t, model.StatusPastDue, org.Status)

	// an explicit block survives the grace window
	org, sub = fixture(model.StatusBlocked, at(0))
	sub.Status = model.StatusActive
	changed := l.EvaluateExpiry(org, sub, t0.Add(24*time.Hour))
	assert.True(t, changed)
	assert.Equal(t, model.StatusBlocked, org.Status)
	assert.Equal(t, model.StatusPastDue, sub.Status)
}

func TestLedger_ApplyCheckout(t *testing.T) {
	l := testLedger()

	org, sub := fixture(model.StatusActive, at(20*24*time.Hour))
	got := l.ApplyCheckout(org, sub, model.PlanAgency, t0)
	assert.Same(t, sub, got)
	assert.Equal(t, model.StatusPastDue, org.Status)
	assert.Equal(t, model.StatusPastDue, got.Status)
	assert.Equal(t, model.PlanAgency, got.Plan)
	assert.Equal(t, at(20*24*time.Hour), got.CurrentPeriodEnd)

	org = &model.Organization{ID: uuid.New(), Status: model.StatusActive}
	created := l.ApplyCheckout(org, nil, model.PlanPro, t0)
	require.NotNil(t, created)
	assert.Equal(t, org.ID, created.OrgID)
	assert.Equal(t, model.StatusPastDue, created.Status)
	assert.Nil(t, created.CurrentPeriodEnd)
}

func TestLedger_ApplyConfirmationApproved(t *testing.T) {
	l := testLedger()
	org, sub := fixture(model.StatusPastDue, at(-5*24*time.Hour))
	org.Plan = model.PlanFree
	attempt := &model.PaymentAttempt{ID: uuid.New(), OrgID: org.ID, Plan: model.PlanAgency, Status: model.PaymentPending}

	got, outcome := l.ApplyConfirmation(org, sub, attempt, model.PaymentApproved, t0)

	assert.Equal(t, OutcomeActivated, outcome)
	assert.Equal(t, model.PaymentApproved, attempt.Status)
	require.NotNil(t, attempt.PaidAt)
	assert.Equal(t, t0, *attempt.PaidAt)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, t0.Add(30*24*time.Hour), *got.CurrentPeriodEnd)
	assert.Equal(t, model.StatusActive, org.Status)
	assert.Equal(t, model.PlanAgency, org.Plan)
}

func TestLedger_ApplyConfirmationRedeliveryDoesNotExtend(t *testing.T) {
	l := testLedger()
	org, sub := fixture(model.StatusPastDue, nil)
	attempt := &model.PaymentAttempt{ID: uuid.New(), OrgID: org.ID, Plan: model.PlanPro, Status: model.PaymentPending}

	sub, _ = l.ApplyConfirmation(org, sub, attempt, model.PaymentApproved, t0)
	firstEnd := *sub.CurrentPeriodEnd

	sub, outcome := l.ApplyConfirmation(org, sub, attempt, model.PaymentApproved, t0.Add(10*24*time.Hour))
	assert.Equal(t, OutcomeAlreadyActive, outcome)
	assert.Equal(t, firstEnd, *sub.CurrentPeriodEnd)
	assert.Equal(t, t0, *attempt.PaidAt)
	assert.Equal(t, model.StatusActive, org.Status)
}

func TestLedger_ApplyConfirmationFailure(t *testing.T) {
	l := testLedger()

	for _, status := range []model.PaymentStatus{model.PaymentRejected, model.PaymentCancelled, model.PaymentExpired} {
		org, sub := fixture(model.StatusActive, at(0))
		attempt := &model.PaymentAttempt{Status: model.PaymentPending}
		_, outcome := l.ApplyConfirmation(org, sub, attempt, status, t0)
		assert.Equal(t, OutcomeFailed, outcome)
		assert.Equal(t, model.StatusPastDue, org.Status)
		assert.Equal(t, model.StatusPastDue, sub.Status)
		assert.Nil(t, attempt.PaidAt)
	}

	org, sub := fixture(model.StatusBlocked, at(0))
	_, outcome := l.ApplyConfirmation(org, sub, &model.PaymentAttempt{}, model.PaymentRejected, t0)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, model.StatusBlocked, org.Status)
}

func TestLedger_ApplyConfirmationOtherStatuses(t *testing.T) {
	l := testLedger()
	for _, status := range []model.PaymentStatus{model.PaymentPending, model.PaymentInProcess, model.PaymentRefunded} {
		org, sub := fixture(model.StatusPastDue, at(0))
		attempt := &model.PaymentAttempt{Status: model.PaymentCreated}
		_, outcome := l.ApplyConfirmation(org, sub, attempt, status, t0)
		assert.Equal(t, OutcomeRecorded, outcome)
		assert.Equal(t, status, attempt.Status)
		assert.Equal(t, model.StatusPastDue, org.Status)
	}
}
