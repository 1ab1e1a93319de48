package domain

import "time"

// AppealEvent is the message published for downstream notification delivery.
// One payload shape covers the paid/mailed/review/failed routing keys; the
// notification consumer picks a template from EventType.
type AppealEvent struct {
	EventType      string    `json:"event_type"` // e.g. "appeal.paid", "appeal.mailed"
	IntakeID       string    `json:"intake_id"`
	CitationNumber string    `json:"citation_number"`
	Jurisdiction   string    `json:"jurisdiction"`
	Email          string    `json:"email"`
	ServiceClass   string    `json:"service_class"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Routing keys for AppealEvent publications.
const (
	EventAppealPaid         = "appeal.paid"
	EventAppealMailed       = "appeal.mailed"
	EventAppealReviewNeeded = "appeal.review_needed"
	EventAppealFailed       = "appeal.failed"
)
