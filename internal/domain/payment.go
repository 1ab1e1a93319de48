/**
 * @description
 * Payment domain model. A Payment row represents one checkout attempt against
 * the payment provider. At most one `paid` Payment may exist per Intake, and
 * at most one non-terminal Payment may be open at a time; both constraints
 * are enforced in the store with partial unique indexes.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with money.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Terminal reports whether the status can no longer change through checkout;
// a new checkout attempt is allowed only when no non-terminal Payment exists.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}

// Payment represents one checkout attempt. Maps to the `payments` table.
// Created by the checkout orchestrator; status mutated only by the webhook
// pipeline.
type Payment struct {
	ID              uuid.UUID     `json:"id"`
	IntakeID        uuid.UUID     `json:"intake_id"`
	DraftID         uuid.UUID     `json:"draft_id"`
	SessionID       *string       `json:"session_id,omitempty"`        // provider checkout session, set after the provider call
	CheckoutURL     *string       `json:"-"`                           // stored so a duplicate checkout request can return the open session
	PaymentIntentID *string       `json:"payment_intent_id,omitempty"` // provider payment intent, set by the webhook
	Status          PaymentStatus `json:"status"`
	Amount          int64         `json:"amount"` // in cents
	Currency        string        `json:"currency"`
	IdempotencyKey  string        `json:"-"` // sent to the provider on session create
	CorrelationID   uuid.UUID     `json:"correlation_id"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CheckoutSession is the handle returned to the client: an opaque redirect
// target plus the provider session identifier.
type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}
