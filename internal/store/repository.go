/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the appeal-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation and handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Intake methods
	CreateIntake(ctx context.Context, intake *domain.Intake) error
	FindIntakeByID(ctx context.Context, intakeID uuid.UUID) (*domain.Intake, error)
	UpdateIntake(ctx context.Context, intakeID uuid.UUID, params UpdateIntakeParams) (*domain.Intake, error)
	UpdateIntakeStatus(ctx context.Context, intakeID uuid.UUID, status domain.IntakeStatus) error

	// Draft methods
	UpsertDraft(ctx context.Context, draft *domain.Draft) (*domain.Draft, error)
	FindDraftByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error)
	FindDraftByID(ctx context.Context, draftID uuid.UUID) (*domain.Draft, error)
	FinalizeDraft(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error)

	// Checkout / payment methods
	// ClaimCheckoutPayment is the atomic dedupe gate for checkout creation;
	// see the fulfillment repository file for its exact contract.
	ClaimCheckoutPayment(ctx context.Context, payment *domain.Payment, staleWindow time.Duration) (existing *domain.Payment, claimed bool, err error)
	AttachCheckoutSession(ctx context.Context, paymentID uuid.UUID, sessionID, checkoutURL string) error
	ReleaseCheckoutClaim(ctx context.Context, paymentID uuid.UUID) error
	MarkPaymentPaid(ctx context.Context, sessionID string, intakeID uuid.UUID, paymentIntentID string) (payment *domain.Payment, transitioned bool, err error)
	MarkPaymentFailedBySession(ctx context.Context, sessionID string) (*domain.Payment, error)
	MarkPaymentRefunded(ctx context.Context, paymentIntentID string) (*domain.Payment, error)
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
	FindLatestPaymentByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Payment, error)

	// Mail record methods
	CreateMailRecordIfAbsent(ctx context.Context, record *domain.MailRecord) (existing *domain.MailRecord, created bool, err error)
	FindMailRecordByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.MailRecord, error)
	FindMailRecordByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.MailRecord, error)

	// Webhook event methods
	ClaimWebhookEvent(ctx context.Context, providerEventID, eventType string) (event *domain.WebhookEvent, claimed bool, err error)
	MarkWebhookEventApplied(ctx context.Context, eventID uuid.UUID, paymentID uuid.UUID) error
	MarkWebhookEventFulfilled(ctx context.Context, eventID uuid.UUID) error
	MarkWebhookEventRejected(ctx context.Context, eventID uuid.UUID, reason string, needsReview bool) error
	MarkWebhookEventFulfillmentFailed(ctx context.Context, eventID uuid.UUID, stage domain.FulfillmentStage, lastError string, needsReview bool) error
	FindWebhookEventByID(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error)
	FindLatestWebhookEventByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.WebhookEvent, error)

	// Sweep and review methods
	ListRetryableWebhookEvents(ctx context.Context, maxAttempts int, limit int) ([]domain.WebhookEvent, error)
	ListStaleAppliedWebhookEvents(ctx context.Context, staleWindow time.Duration, limit int) ([]domain.WebhookEvent, error)
	ListWebhookEventsNeedingReview(ctx context.Context, limit int) ([]domain.WebhookEvent, error)
}

// UpdateIntakeParams carries the nullable field set for partial intake
// updates. Nil pointers leave the stored value untouched.
type UpdateIntakeParams struct {
	ViolationDate *time.Time
	VehiclePlate  *string
	ContactName   *string
	Email         *string
	Address       *domain.Address
	EvidenceURLs  *[]string
	ServiceClass  *domain.ServiceClass
	Status        *domain.IntakeStatus
}
