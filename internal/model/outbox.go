package model

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Billing event types written to the outbox.
const (
	EventCheckoutCreated   = "billing.checkout_created"
	EventPaymentApproved   = "billing.payment_approved"
	EventPaymentFailed     = "billing.payment_failed"
	EventPaymentUpdated    = "billing.payment_updated"
	EventOrgStatusChanged  = "billing.org_status_changed"
	EventBillingOverridden = "billing.overridden"
)

type OutboxEvent struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	EventType    string       `db:"event_type" json:"event_type"`
	OrgID        *uuid.UUID   `db:"org_id" json:"org_id,omitempty"`
	Payload      RawJSON      `db:"payload" json:"payload"`
	Status       OutboxStatus `db:"status" json:"status"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int          `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time   `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, orgID *uuid.UUID, payload interface{}) (*OutboxEvent, error) {
	data, err := MarshalRaw(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		OrgID:     orgID,
		Payload:   data,
		Status:    OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BillingEvent is the payload published for billing transitions
type BillingEvent struct {
	OrgID             uuid.UUID     `json:"org_id"`
	Plan              Plan          `json:"plan,omitempty"`
	OrgStatus         BillingStatus `json:"org_status"`
	PaymentAttemptID  *uuid.UUID    `json:"payment_attempt_id,omitempty"`
	ProviderPaymentID string        `json:"provider_payment_id,omitempty"`
	PaymentStatus     PaymentStatus `json:"payment_status,omitempty"`
	Amount            string        `json:"amount,omitempty"`
	OccurredAt        time.Time     `json:"occurred_at"`
}
