/**
 * @description
 * Webhook-driven fulfillment pipeline. A signature-verified payment event
 * enters here exactly once (the webhook_events ledger absorbs redeliveries)
 * and drives the paid intake through address verification, letter
 * composition, and carrier dispatch.
 *
 * Failure handling is staged: each pipeline step persists the stage it
 * stopped at on the event row, so the retry sweep and the operator review
 * flow re-enter through ResumeFulfillment instead of relying on provider
 * redelivery. Dispatch is idempotent twice over: the carrier call carries the
 * payment id as its idempotency key and the mail_records unique constraint
 * refuses a second row, so no retry path can mail a second letter.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/citation"
	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/letter"
	"github.com/curbappeal/appeal-service/internal/store"
	"github.com/curbappeal/appeal-service/pkg/lobclient"
	"github.com/curbappeal/appeal-service/pkg/stripeclient"
)

// Provider event types the pipeline acts on. Everything else is acknowledged
// without being recorded.
const (
	EventTypeCheckoutCompleted  = "checkout.session.completed"
	EventTypeCheckoutExpired    = "checkout.session.expired"
	EventTypeAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventTypeChargeRefunded     = "charge.refunded"
)

// ProcessPaymentEvent is the webhook entry point. The returned error means
// the event could not be recorded at all and the provider should redeliver;
// every outcome after the ledger claim is persisted on the event row and
// reported as success to the provider.
func (s *Service) ProcessPaymentEvent(ctx context.Context, evt domain.PaymentEvent) error {
	switch evt.EventType {
	case EventTypeCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, evt)
	case EventTypeCheckoutExpired, EventTypeAsyncPaymentFailed:
		return s.handleCheckoutFailed(ctx, evt)
	case EventTypeChargeRefunded:
		return s.handleChargeRefunded(ctx, evt)
	default:
		log.Printf("level=info component=fulfillment msg=\"ignoring unhandled event type\" event_type=%s provider_event_id=%s", evt.EventType, evt.ProviderEventID)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, evt domain.PaymentEvent) error {
	event, claimed, err := s.repo.ClaimWebhookEvent(ctx, evt.ProviderEventID, evt.EventType)
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		log.Printf("level=info component=fulfillment msg=\"duplicate delivery absorbed\" provider_event_id=%s status=%s", evt.ProviderEventID, event.Status)
		return nil
	}

	payment, transitioned, err := s.repo.MarkPaymentPaid(ctx, evt.SessionID, evt.IntakeID, evt.PaymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			reason := fmt.Sprintf("no payment for session %s", evt.SessionID)
			if markErr := s.repo.MarkWebhookEventRejected(ctx, event.ID, reason, true); markErr != nil {
				log.Printf("level=error component=fulfillment msg=\"failed to persist rejection\" provider_event_id=%s err=%v", evt.ProviderEventID, markErr)
			}
			log.Printf("level=warn component=fulfillment msg=\"paid event references unknown session\" provider_event_id=%s session_id=%s", evt.ProviderEventID, evt.SessionID)
			return nil
		}
		return fmt.Errorf("apply payment transition: %w", err)
	}

	if !transitioned && payment.Status != domain.PaymentStatusPaid {
		reason := fmt.Sprintf("payment %s already terminal (%s)", payment.ID, payment.Status)
		if markErr := s.repo.MarkWebhookEventRejected(ctx, event.ID, reason, true); markErr != nil {
			log.Printf("level=error component=fulfillment msg=\"failed to persist rejection\" provider_event_id=%s err=%v", evt.ProviderEventID, markErr)
		}
		log.Printf("level=warn component=fulfillment msg=\"paid event arrived after terminal status\" provider_event_id=%s payment_id=%s status=%s", evt.ProviderEventID, payment.ID, payment.Status)
		return nil
	}

	if transitioned {
		if err := s.repo.UpdateIntakeStatus(ctx, payment.IntakeID, domain.IntakeStatusPaid); err != nil {
			log.Printf("level=warn component=fulfillment msg=\"failed to mark intake paid\" intake_id=%s err=%v", payment.IntakeID, err)
		}
		s.publishAppealEvent(ctx, domain.EventAppealPaid, payment.IntakeID, "", "")
	}

	if err := s.repo.MarkWebhookEventApplied(ctx, event.ID, payment.ID); err != nil {
		// The payment transition is durable; the stale-applied sweep will
		// pick the event up if this attempt dies here.
		log.Printf("level=error component=fulfillment msg=\"failed to mark event applied\" provider_event_id=%s err=%v", evt.ProviderEventID, err)
		return nil
	}
	event.Status = domain.EventStatusApplied
	event.PaymentID = &payment.ID
	event.Attempts++

	if runErr := s.runFulfillment(ctx, event, payment); runErr != nil {
		log.Printf("level=warn component=fulfillment msg=\"fulfillment attempt did not complete\" provider_event_id=%s payment_id=%s err=%v", evt.ProviderEventID, payment.ID, runErr)
	}
	return nil
}

func (s *Service) handleCheckoutFailed(ctx context.Context, evt domain.PaymentEvent) error {
	event, claimed, err := s.repo.ClaimWebhookEvent(ctx, evt.ProviderEventID, evt.EventType)
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		return nil
	}

	payment, err := s.repo.MarkPaymentFailedBySession(ctx, evt.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			if markErr := s.repo.MarkWebhookEventRejected(ctx, event.ID, "no payment for expired session", false); markErr != nil {
				log.Printf("level=error component=fulfillment msg=\"failed to persist rejection\" provider_event_id=%s err=%v", evt.ProviderEventID, markErr)
			}
			return nil
		}
		return fmt.Errorf("apply payment failure: %w", err)
	}

	if err := s.repo.MarkWebhookEventApplied(ctx, event.ID, payment.ID); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to mark event applied\" provider_event_id=%s err=%v", evt.ProviderEventID, err)
		return nil
	}
	if err := s.repo.MarkWebhookEventFulfilled(ctx, event.ID); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to close failure event\" provider_event_id=%s err=%v", evt.ProviderEventID, err)
	}

	log.Printf("level=info component=fulfillment msg=\"checkout did not complete\" payment_id=%s intake_id=%s event_type=%s", payment.ID, payment.IntakeID, evt.EventType)
	s.publishAppealEvent(ctx, domain.EventAppealFailed, payment.IntakeID, "", "payment did not complete")
	return nil
}

func (s *Service) handleChargeRefunded(ctx context.Context, evt domain.PaymentEvent) error {
	event, claimed, err := s.repo.ClaimWebhookEvent(ctx, evt.ProviderEventID, evt.EventType)
	if err != nil {
		return fmt.Errorf("claim webhook event: %w", err)
	}
	if !claimed {
		return nil
	}

	payment, err := s.repo.MarkPaymentRefunded(ctx, evt.PaymentIntentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			if markErr := s.repo.MarkWebhookEventRejected(ctx, event.ID, "no paid payment for refunded intent", false); markErr != nil {
				log.Printf("level=error component=fulfillment msg=\"failed to persist rejection\" provider_event_id=%s err=%v", evt.ProviderEventID, markErr)
			}
			return nil
		}
		return fmt.Errorf("apply refund: %w", err)
	}

	if err := s.repo.MarkWebhookEventApplied(ctx, event.ID, payment.ID); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to mark event applied\" provider_event_id=%s err=%v", evt.ProviderEventID, err)
		return nil
	}
	if err := s.repo.MarkWebhookEventFulfilled(ctx, event.ID); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to close refund event\" provider_event_id=%s err=%v", evt.ProviderEventID, err)
	}

	// A refund before dispatch closes the appeal; a refund after the letter
	// went out leaves the mailed record standing.
	if _, recErr := s.repo.FindMailRecordByPaymentID(ctx, payment.ID); errors.Is(recErr, store.ErrMailRecordNotFound) {
		if err := s.repo.UpdateIntakeStatus(ctx, payment.IntakeID, domain.IntakeStatusFailed); err != nil {
			log.Printf("level=warn component=fulfillment msg=\"failed to close intake after refund\" intake_id=%s err=%v", payment.IntakeID, err)
		}
		s.publishAppealEvent(ctx, domain.EventAppealFailed, payment.IntakeID, "", "payment refunded before dispatch")
	}

	log.Printf("level=info component=fulfillment msg=\"refund recorded\" payment_id=%s intake_id=%s", payment.ID, payment.IntakeID)
	return nil
}

// ResumeFulfillment re-enters the pipeline for a failed or stalled event.
// Called by the retry sweep and by the operator review endpoint. The earlier
// stages re-run because they are pure or idempotent; the recorded stage
// exists for diagnostics and review routing.
func (s *Service) ResumeFulfillment(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error) {
	event, err := s.repo.FindWebhookEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != domain.EventStatusFulfillmentFailed && event.Status != domain.EventStatusApplied {
		return nil, fmt.Errorf("%w: status is %s", ErrEventNotResumable, event.Status)
	}
	if event.PaymentID == nil {
		return nil, fmt.Errorf("%w: no payment attached", ErrEventNotResumable)
	}

	payment, err := s.repo.FindPaymentByID(ctx, *event.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPaid {
		reason := fmt.Sprintf("payment %s is %s, not paid", payment.ID, payment.Status)
		if markErr := s.repo.MarkWebhookEventRejected(ctx, event.ID, reason, false); markErr != nil {
			return nil, markErr
		}
		log.Printf("level=info component=fulfillment msg=\"resume closed event for non-paid payment\" event_id=%s payment_status=%s", event.ID, payment.Status)
		return s.repo.FindWebhookEventByID(ctx, eventID)
	}

	if err := s.repo.MarkWebhookEventApplied(ctx, event.ID, payment.ID); err != nil {
		return nil, err
	}
	event.Status = domain.EventStatusApplied
	event.Attempts++

	if runErr := s.runFulfillment(ctx, event, payment); runErr != nil {
		log.Printf("level=warn component=fulfillment msg=\"resumed fulfillment did not complete\" event_id=%s err=%v", event.ID, runErr)
	}
	return s.repo.FindWebhookEventByID(ctx, eventID)
}

// RejectReviewEvent closes a reviewed event without dispatching. The intake
// is moved to failed so the user-facing status stops promising mail.
func (s *Service) RejectReviewEvent(ctx context.Context, eventID uuid.UUID, reason string) (*domain.WebhookEvent, error) {
	event, err := s.repo.FindWebhookEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == domain.EventStatusFulfilled {
		return nil, fmt.Errorf("%w: already fulfilled", ErrEventNotResumable)
	}

	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "rejected by operator"
	}
	if err := s.repo.MarkWebhookEventRejected(ctx, eventID, reason, false); err != nil {
		return nil, err
	}

	if event.PaymentID != nil {
		if payment, err := s.repo.FindPaymentByID(ctx, *event.PaymentID); err == nil {
			if err := s.repo.UpdateIntakeStatus(ctx, payment.IntakeID, domain.IntakeStatusFailed); err != nil {
				log.Printf("level=warn component=fulfillment msg=\"failed to mark intake failed on reject\" intake_id=%s err=%v", payment.IntakeID, err)
			}
		}
	}

	return s.repo.FindWebhookEventByID(ctx, eventID)
}

// ListReviewQueue returns events flagged for manual review.
func (s *Service) ListReviewQueue(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	return s.repo.ListWebhookEventsNeedingReview(ctx, limit)
}

// runFulfillment executes address verification, composition, and dispatch for
// a paid payment. Every exit persists the event outcome; the returned error
// exists for the caller's log line only.
func (s *Service) runFulfillment(ctx context.Context, event *domain.WebhookEvent, payment *domain.Payment) error {
	// A mail record means a previous attempt already dispatched and died
	// before closing the event.
	if existing, err := s.repo.FindMailRecordByPaymentID(ctx, payment.ID); err == nil {
		log.Printf("level=info component=fulfillment msg=\"mail record already exists; closing event\" payment_id=%s carrier_letter_id=%s", payment.ID, existing.CarrierLetterID)
		return s.closeFulfilled(ctx, event, payment, existing)
	} else if !errors.Is(err, store.ErrMailRecordNotFound) {
		return s.failStage(ctx, event, payment, domain.StageDispatch, fmt.Errorf("check existing mail record: %w", err), false)
	}

	intake, err := s.repo.FindIntakeByID(ctx, payment.IntakeID)
	if err != nil {
		return s.failStage(ctx, event, payment, domain.StageAddress, fmt.Errorf("load intake: %w", err), errors.Is(err, store.ErrIntakeNotFound))
	}
	draft, err := s.repo.FindDraftByID(ctx, payment.DraftID)
	if err != nil {
		return s.failStage(ctx, event, payment, domain.StageAddress, fmt.Errorf("load draft: %w", err), errors.Is(err, store.ErrDraftNotFound))
	}
	jurisdiction := s.registry.Lookup(citation.Code(intake.Jurisdiction))
	if jurisdiction == nil {
		return s.failStage(ctx, event, payment, domain.StageAddress, fmt.Errorf("jurisdiction %q not in registry", intake.Jurisdiction), true)
	}

	// Stage: address verification.
	verification, mailingAddress, err := s.verifyContactAddress(ctx, intake)
	if err != nil {
		return s.failStage(ctx, event, payment, domain.StageAddress, err, !isTemporaryCarrierError(err))
	}
	if verification.Deliverability == domain.DeliverabilityUndeliverable {
		err := fmt.Errorf("contact address is undeliverable")
		if failErr := s.failStage(ctx, event, payment, domain.StageAddress, err, true); failErr != nil {
			return failErr
		}
		return err
	}

	// Stage: compose. Pure and deterministic, so a failure here is a data
	// problem and goes straight to review.
	letterDate := draft.CreatedAt
	if draft.FinalizedAt != nil {
		letterDate = *draft.FinalizedAt
	}
	pdf, err := s.composer.Compose(letter.Input{
		CitationNumber:   intake.CitationNumber,
		JurisdictionName: jurisdiction.Name,
		AgencyName:       jurisdiction.AgencyName,
		AgencyAddress:    jurisdiction.AgencyAddress,
		ContactName:      intake.ContactName,
		ContactAddress:   mailingAddress,
		ViolationDate:    intake.ViolationDate,
		VehiclePlate:     intake.VehiclePlate,
		Statement:        draft.BodyStatement(),
		EvidenceURLs:     intake.EvidenceURLs,
		LetterDate:       letterDate,
	})
	if err != nil {
		return s.failStage(ctx, event, payment, domain.StageCompose, err, true)
	}

	// Stage: dispatch.
	opts := domain.OptionsForClass(intake.ServiceClass)
	carrierLetter, err := s.lobClient.CreateLetter(ctx, lobclient.LetterParams{
		Description:      fmt.Sprintf("appeal %s", payment.CorrelationID),
		To:               agencyAddressInput(jurisdiction),
		From:             s.returnAddressInput(intake, mailingAddress),
		PDF:              pdf,
		DoubleSided:      opts.DoubleSided,
		ReturnEnvelope:   opts.ReturnEnvelope,
		AddressPlacement: opts.AddressPlacement,
		ExtraService:     opts.ExtraService,
		IdempotencyKey:   payment.ID.String(),
	})
	if err != nil {
		return s.failStage(ctx, event, payment, domain.StageDispatch, err, !isTemporaryCarrierError(err))
	}

	record := &domain.MailRecord{
		ID:                   uuid.New(),
		PaymentID:            payment.ID,
		CarrierLetterID:      carrierLetter.ID,
		TrackingNumber:       carrierLetter.TrackingNumber,
		ServiceClass:         intake.ServiceClass,
		Verification:         *verification,
		ExpectedDeliveryDate: carrierLetter.ExpectedDelivery(),
		DispatchedAt:         time.Now().UTC(),
	}
	stored, created, err := s.repo.CreateMailRecordIfAbsent(ctx, record)
	if err != nil {
		// The carrier accepted the letter; the idempotency key makes the
		// retried dispatch a replay, not a second mailing.
		return s.failStage(ctx, event, payment, domain.StageDispatch, fmt.Errorf("persist mail record: %w", err), false)
	}
	if !created {
		log.Printf("level=info component=fulfillment msg=\"concurrent dispatch won; using stored record\" payment_id=%s carrier_letter_id=%s", payment.ID, stored.CarrierLetterID)
	}

	return s.closeFulfilled(ctx, event, payment, stored)
}

// closeFulfilled finishes a successful pipeline run: intake to mailed, event
// closed, notification out.
func (s *Service) closeFulfilled(ctx context.Context, event *domain.WebhookEvent, payment *domain.Payment, record *domain.MailRecord) error {
	if err := s.repo.UpdateIntakeStatus(ctx, payment.IntakeID, domain.IntakeStatusMailed); err != nil {
		log.Printf("level=warn component=fulfillment msg=\"failed to mark intake mailed\" intake_id=%s err=%v", payment.IntakeID, err)
	}
	if err := s.repo.MarkWebhookEventFulfilled(ctx, event.ID); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to close fulfilled event\" event_id=%s err=%v", event.ID, err)
		return err
	}

	tracking := ""
	if record.ServiceClass.TrackingVisible() && record.TrackingNumber != nil {
		tracking = *record.TrackingNumber
	}
	s.publishAppealEvent(ctx, domain.EventAppealMailed, payment.IntakeID, tracking, "")

	log.Printf("level=info component=fulfillment msg=\"letter dispatched\" payment_id=%s intake_id=%s carrier_letter_id=%s service_class=%s attempts=%d",
		payment.ID, payment.IntakeID, record.CarrierLetterID, record.ServiceClass, event.Attempts)
	return nil
}

// failStage persists a staged failure. Terminal failures (review=true) raise
// a review notification and park the event for an operator; the intake stays
// paid, because the mailing is paused, not abandoned. Transient failures are
// left for the sweep, escalating to review once attempts run out.
func (s *Service) failStage(ctx context.Context, event *domain.WebhookEvent, payment *domain.Payment, stage domain.FulfillmentStage, cause error, terminal bool) error {
	review := terminal || event.Attempts >= s.settings.FulfillmentMaxAttempts
	if err := s.repo.MarkWebhookEventFulfillmentFailed(ctx, event.ID, stage, cause.Error(), review); err != nil {
		log.Printf("level=error component=fulfillment msg=\"failed to persist stage failure\" event_id=%s stage=%s err=%v", event.ID, stage, err)
		return err
	}

	if review {
		s.publishAppealEvent(ctx, domain.EventAppealReviewNeeded, payment.IntakeID, "", cause.Error())
	}

	log.Printf("level=warn component=fulfillment msg=\"fulfillment stage failed\" event_id=%s payment_id=%s stage=%s review=%t attempts=%d err=%v",
		event.ID, payment.ID, stage, review, event.Attempts, cause)
	return cause
}

// verifyContactAddress verifies the intake's contact address and returns the
// snapshot plus the address the letter should carry. Soft verification
// results proceed with a review flag in the snapshot; only a hard
// undeliverable blocks dispatch (decided by the caller).
func (s *Service) verifyContactAddress(ctx context.Context, intake *domain.Intake) (*domain.AddressVerification, domain.Address, error) {
	result, err := s.lobClient.VerifyUSAddress(ctx, contactAddressInput(intake.ContactName, intake.Address))
	if err != nil {
		return nil, domain.Address{}, fmt.Errorf("verify address: %w", err)
	}

	verification := &domain.AddressVerification{
		VerifiedAt: time.Now().UTC(),
	}
	mailingAddress := intake.Address

	switch result.Deliverability {
	case lobclient.DeliverabilityDeliverable:
		verification.Deliverability = domain.DeliverabilityDeliverable
	case lobclient.DeliverabilityMissingUnit, lobclient.DeliverabilityIncorrectUnit, lobclient.DeliverabilityUnnecessaryUnit:
		verification.Deliverability = domain.DeliverabilityDeliverable
		verification.NeedsReview = true
	case lobclient.DeliverabilityUndeliverable:
		verification.Deliverability = domain.DeliverabilityUndeliverable
		return verification, mailingAddress, nil
	default:
		verification.Deliverability = domain.DeliverabilityUnverifiable
		verification.NeedsReview = true
	}

	if result.PrimaryLine != "" {
		normalized := domain.Address{
			Line1:      result.PrimaryLine,
			Line2:      result.SecondaryLine,
			City:       result.Components.City,
			State:      result.Components.State,
			PostalCode: result.Components.ZipCode,
		}
		if normalized.Complete() {
			verification.Normalized = &normalized
			mailingAddress = normalized
		}
	}

	return verification, mailingAddress, nil
}

// publishAppealEvent emits a notification event. Delivery is best-effort and
// never fails the pipeline.
func (s *Service) publishAppealEvent(ctx context.Context, eventType string, intakeID uuid.UUID, trackingNumber, reason string) {
	if s.eventProducer == nil {
		return
	}

	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		log.Printf("level=warn component=fulfillment msg=\"skipping notification; intake lookup failed\" intake_id=%s err=%v", intakeID, err)
		return
	}

	event := domain.AppealEvent{
		EventType:      eventType,
		IntakeID:       intake.ID.String(),
		CitationNumber: intake.CitationNumber,
		Jurisdiction:   intake.Jurisdiction,
		Email:          intake.Email,
		ServiceClass:   string(intake.ServiceClass),
		TrackingNumber: trackingNumber,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.eventProducer.PublishAppealEvent(ctx, event); err != nil {
		log.Printf("level=warn component=fulfillment msg=\"notification publish failed\" intake_id=%s event_type=%s err=%v", intakeID, eventType, err)
	}
}

// isTemporaryCarrierError classifies external call failures. Structured API
// errors carry their own verdict; anything else (timeouts, connection resets)
// is worth retrying.
func isTemporaryCarrierError(err error) bool {
	var lobErr *lobclient.ErrorResponse
	if errors.As(err, &lobErr) {
		return lobErr.Temporary()
	}
	var stripeErr *stripeclient.ErrorResponse
	if errors.As(err, &stripeErr) {
		return stripeErr.Temporary()
	}
	return true
}

func agencyAddressInput(j *citation.Jurisdiction) lobclient.AddressInput {
	return lobclient.AddressInput{
		Name:       j.AgencyName,
		Line1:      j.AgencyAddress.Line1,
		Line2:      j.AgencyAddress.Line2,
		City:       j.AgencyAddress.City,
		State:      j.AgencyAddress.State,
		PostalCode: j.AgencyAddress.PostalCode,
	}
}

func contactAddressInput(name string, addr domain.Address) lobclient.AddressInput {
	return lobclient.AddressInput{
		Name:       name,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
	}
}

// returnAddressInput picks the envelope sender: the configured service return
// address when complete, otherwise the appellant's own mailing address. The
// letter body always carries the appellant's address either way.
func (s *Service) returnAddressInput(intake *domain.Intake, mailingAddress domain.Address) lobclient.AddressInput {
	if s.settings.ReturnName != "" && s.settings.ReturnAddress.Complete() {
		return contactAddressInput(s.settings.ReturnName, s.settings.ReturnAddress)
	}
	return contactAddressInput(intake.ContactName, mailingAddress)
}
