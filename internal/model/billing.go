package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subscription is the billing-period record governing an organization's access.
type Subscription struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	OrgID            uuid.UUID     `json:"org_id" db:"org_id"`
	Plan             Plan          `json:"plan" db:"plan"`
	Status           BillingStatus `json:"status" db:"status"`
	CurrentPeriodEnd *time.Time    `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// PaymentStatus mirrors the provider's payment status string.
type PaymentStatus string

const (
	PaymentCreated     PaymentStatus = "created"
	PaymentPending     PaymentStatus = "pending"
	PaymentApproved    PaymentStatus = "approved"
	PaymentAuthorized  PaymentStatus = "authorized"
	PaymentInProcess   PaymentStatus = "in_process"
	PaymentRejected    PaymentStatus = "rejected"
	PaymentCancelled   PaymentStatus = "cancelled"
	PaymentExpired     PaymentStatus = "expired"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentChargedBack PaymentStatus = "charged_back"
)

// NormalizePaymentStatus lower-cases and trims a provider status.
func NormalizePaymentStatus(s string) PaymentStatus {
	return PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsApproved reports whether funds were confirmed.
func (s PaymentStatus) IsApproved() bool {
	return s == PaymentApproved
}

// IsFailure reports whether the attempt ended without payment.
func (s PaymentStatus) IsFailure() bool {
	switch s {
	case PaymentRejected, PaymentCancelled, PaymentExpired:
		return true
	}
	return false
}

// PaymentAttempt is one checkout's record of a provider charge. Rows are never deleted.
type PaymentAttempt struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	OrgID             uuid.UUID     `json:"org_id" db:"org_id"`
	Plan              Plan          `json:"plan" db:"plan"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty" db:"provider_payment_id"`
	Amount            Cents         `json:"-" db:"amount_cents"`
	Status            PaymentStatus `json:"status" db:"status"`
	QRCode            *string       `json:"qr_code_base64,omitempty" db:"qr_code_base64"`
	PixCopyPaste      *string       `json:"pix_copy_paste,omitempty" db:"pix_copy_paste"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
}

// PaymentAttemptView is the JSON representation of a PaymentAttempt
type PaymentAttemptView struct {
	*PaymentAttempt
	AmountText string `json:"amount"`
}

// View returns the client-facing representation.
func (p *PaymentAttempt) View() *PaymentAttemptView {
	if p == nil {
		return nil
	}
	return &PaymentAttemptView{PaymentAttempt: p, AmountText: p.Amount.String()}
}

// CheckoutRequest selects the plan to purchase
type CheckoutRequest struct {
	Plan string `json:"plan" form:"plan" binding:"omitempty,plan"`
}

// BillingOverview is returned by the billing index
type BillingOverview struct {
	Organization *Organization       `json:"organization"`
	Subscription *Subscription       `json:"subscription,omitempty"`
	LastPayment  *PaymentAttemptView `json:"last_payment,omitempty"`
	Plans        []PlanPrice         `json:"plans"`
}
