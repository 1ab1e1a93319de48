/**
 * @description
 * Persisted webhook state machine types. Every provider event we accept gets
 * exactly one `webhook_events` row, claimed atomically on first delivery; the
 * row then records how far fulfillment progressed so a retry sweep can resume
 * at the failing stage instead of restarting the pipeline.
 *
 * State machine:
 *
 *   received --payment_applied--> applied --fulfillment_ok--> fulfilled
 *   received --bad_metadata/missing_records--> rejected
 *   applied  --stage_error--> fulfillment_failed[stage]
 *
 * Signature verification happens before the row exists; a payload that fails
 * it is rejected at the boundary and never claimed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the persisted state of a webhook event.
type EventStatus string

const (
	EventStatusReceived          EventStatus = "received"
	EventStatusApplied           EventStatus = "applied"
	EventStatusFulfilled         EventStatus = "fulfilled"
	EventStatusRejected          EventStatus = "rejected"
	EventStatusFulfillmentFailed EventStatus = "fulfillment_failed"
)

// FulfillmentStage names the pipeline stage a failed event stopped at. The
// retry sweep re-enters the pipeline at this stage.
type FulfillmentStage string

const (
	StageAddress  FulfillmentStage = "address"
	StageCompose  FulfillmentStage = "compose"
	StageDispatch FulfillmentStage = "dispatch"
)

// WebhookEvent maps to the `webhook_events` table. The unique constraint on
// ProviderEventID is the idempotency guard for at-least-once delivery.
type WebhookEvent struct {
	ID              uuid.UUID        `json:"id"`
	ProviderEventID string           `json:"provider_event_id"`
	EventType       string           `json:"event_type"`
	Status          EventStatus      `json:"status"`
	Stage           FulfillmentStage `json:"stage,omitempty"`
	PaymentID       *uuid.UUID       `json:"payment_id,omitempty"`
	Attempts        int              `json:"attempts"`
	LastError       *string          `json:"last_error,omitempty"`
	NeedsReview     bool             `json:"needs_review"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SweepResult summarizes one pass of the fulfillment retry sweep.
type SweepResult struct {
	Scanned   int `json:"scanned"`   // candidate events picked up this pass
	Fulfilled int `json:"fulfilled"` // completed end to end after resume
	Failed    int `json:"failed"`    // failed again, left for the next pass
	Review    int `json:"review"`    // escalated to the manual review queue
	Errors    int `json:"errors"`    // resume calls that errored outright
}

// PaymentEvent is the parsed, signature-verified provider payload. Only the
// identifiers below are trusted; everything else in the raw payload is
// ignored so webhook data can never become a PII source.
type PaymentEvent struct {
	ProviderEventID string    `json:"provider_event_id"`
	EventType       string    `json:"event_type"`
	SessionID       string    `json:"session_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	IntakeID        uuid.UUID `json:"intake_id"`
	DraftID         uuid.UUID `json:"draft_id"`
	CorrelationID   string    `json:"correlation_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}
