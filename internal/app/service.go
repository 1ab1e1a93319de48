/**
 * @description
 * This file contains the core business logic for the appeal-service. The `Service`
 * struct orchestrates the citation-to-mailbox flow, coordinating between the database
 * repository, the payment provider, the print-and-mail carrier, and the message broker.
 *
 * Key features:
 * - Implements the intake and draft lifecycle: create, partial update, draft
 *   upsert, and finalization.
 * - Contains the checkout orchestration with its atomic single-open-session
 *   guarantee per intake.
 * - Keeps provider-side checkout metadata down to record identifiers so no
 *   personal data ever crosses into the payment provider.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/citation, internal/domain, internal/letter, internal/store: Core packages.
 * - pkg/lobclient, pkg/rabbitmq, pkg/stripeclient: For external service communication.
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
	"github.com/curbappeal/appeal-service/pkg/rabbitmq"
	"github.com/curbappeal/appeal-service/pkg/stripeclient"
)

const (
	checkoutWaitAttempts = 3
	checkoutWaitBackoff  = 300 * time.Millisecond
)

var (
	ErrCitationInvalid       = errors.New("citation failed validation")
	ErrJurisdictionBlocked   = errors.New("jurisdiction is not serviceable")
	ErrInvalidViolationDate  = errors.New("violation date must be formatted YYYY-MM-DD")
	ErrInvalidServiceClass   = errors.New("unknown service class")
	ErrIntakeImmutable       = errors.New("intake can no longer be edited")
	ErrPaidIntakeFieldLocked = errors.New("only the mailing address can be edited after payment")
	ErrIntakeNotReady        = errors.New("intake is not ready for payment")
	ErrDraftEmpty            = errors.New("draft statement is empty")
	ErrSignatureRequired     = errors.New("draft has no signature reference")
	ErrAddressIncomplete     = errors.New("contact address is incomplete")
	ErrDraftMismatch         = errors.New("draft does not belong to intake")
	ErrDraftNotFinalized     = errors.New("draft is not finalized")
	ErrEventNotResumable     = errors.New("webhook event is not resumable")
	ErrCheckoutSessionCreate = errors.New("payment provider rejected session creation")
)

// Settings carries the tunables the orchestration logic needs. Populated from
// config at startup. ReturnName/ReturnAddress identify the service's mail
// center; when complete they become the envelope sender on dispatched
// letters, otherwise the appellant's own address is used.
type Settings struct {
	AppealFeeCents           int64
	CertifiedUpgradeCents    int64
	Currency                 string
	CheckoutSuccessURL       string
	CheckoutCancelURL        string
	CheckoutClaimStaleWindow time.Duration
	FulfillmentMaxAttempts   int
	FulfillmentStaleWindow   time.Duration
	ReturnName               string
	ReturnAddress            domain.Address
}

// Service provides the core business logic for appeals.
type Service struct {
	repo          store.Repository
	stripeClient  *stripeclient.Client
	lobClient     *lobclient.Client
	composer      *letter.Composer
	validator     *citation.Validator
	registry      *citation.Registry
	eventProducer rabbitmq.Publisher
	settings      Settings
}

// NewService creates a new appeal service instance.
func NewService(
	repo store.Repository,
	stripeClient *stripeclient.Client,
	lobClient *lobclient.Client,
	composer *letter.Composer,
	validator *citation.Validator,
	registry *citation.Registry,
	producer rabbitmq.Publisher,
	settings Settings,
) *Service {
	if settings.CheckoutClaimStaleWindow <= 0 {
		settings.CheckoutClaimStaleWindow = 2 * time.Minute
	}
	if settings.FulfillmentMaxAttempts <= 0 {
		settings.FulfillmentMaxAttempts = 5
	}
	if settings.FulfillmentStaleWindow <= 0 {
		settings.FulfillmentStaleWindow = 10 * time.Minute
	}
	return &Service{
		repo:          repo,
		stripeClient:  stripeClient,
		lobClient:     lobClient,
		composer:      composer,
		validator:     validator,
		registry:      registry,
		eventProducer: producer,
		settings:      settings,
	}
}

// ValidateCitation runs the jurisdiction-aware format validation. Pure
// computation, exposed here so the handler layer has a single dependency.
func (s *Service) ValidateCitation(input citation.Input) citation.Result {
	return s.validator.Validate(input)
}

// CreateIntake opens a new intake from a validated citation.
func (s *Service) CreateIntake(ctx context.Context, req domain.CreateIntakeRequest) (*domain.Intake, error) {
	violationDate, err := parseViolationDate(req.ViolationDate)
	if err != nil {
		return nil, err
	}

	result := s.validator.Validate(citation.Input{
		CitationNumber: req.CitationNumber,
		Jurisdiction:   req.Jurisdiction,
		VehiclePlate:   stringValue(req.VehiclePlate),
		ViolationDate:  violationDate,
	})
	if result.ServiceBlocked {
		return nil, fmt.Errorf("%w: %s", ErrJurisdictionBlocked, result.Jurisdiction)
	}
	if !result.Valid {
		reason := result.Reason
		if reason == "" {
			reason = "citation number did not match any known format"
		}
		return nil, fmt.Errorf("%w: %s", ErrCitationInvalid, reason)
	}

	serviceClass := domain.ServiceClassStandard
	if req.ServiceClass != "" {
		serviceClass = domain.ServiceClass(req.ServiceClass)
		if !serviceClass.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidServiceClass, req.ServiceClass)
		}
	}

	intake := &domain.Intake{
		ID:             uuid.New(),
		CitationNumber: result.NormalizedCitation,
		Jurisdiction:   string(result.Jurisdiction),
		ViolationDate:  violationDate,
		VehiclePlate:   req.VehiclePlate,
		ContactName:    strings.TrimSpace(req.ContactName),
		Email:          strings.TrimSpace(req.Email),
		Address:        req.Address,
		ServiceClass:   serviceClass,
	}
	intake.Status = intakeReadiness(intake)

	if err := s.repo.CreateIntake(ctx, intake); err != nil {
		return nil, fmt.Errorf("failed to create intake: %w", err)
	}

	log.Printf("CreateIntake: opened intake %s for citation %s jurisdiction %s status %s", intake.ID, intake.CitationNumber, intake.Jurisdiction, intake.Status)
	return intake, nil
}

// GetIntake returns an intake together with its draft when one exists.
func (s *Service) GetIntake(ctx context.Context, intakeID uuid.UUID) (*domain.IntakeResponse, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	draft, err := s.repo.FindDraftByIntakeID(ctx, intakeID)
	if err != nil && !errors.Is(err, store.ErrDraftNotFound) {
		return nil, err
	}

	return &domain.IntakeResponse{Intake: intake, Draft: draft}, nil
}

// UpdateIntake applies a partial update and recomputes payment readiness.
func (s *Service) UpdateIntake(ctx context.Context, intakeID uuid.UUID, req domain.UpdateIntakeRequest) (*domain.Intake, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if !intake.Mutable() {
		return nil, ErrIntakeImmutable
	}
	// After payment only the mailing address may change, so a user can fix
	// an undeliverable address for the review flow without touching what
	// they paid for.
	if intake.Status == domain.IntakeStatusPaid {
		if req.ViolationDate != nil || req.VehiclePlate != nil || req.ContactName != nil ||
			req.Email != nil || req.EvidenceURLs != nil || req.ServiceClass != nil {
			return nil, ErrPaidIntakeFieldLocked
		}
	}

	violationDate, err := parseViolationDate(req.ViolationDate)
	if err != nil {
		return nil, err
	}

	params := store.UpdateIntakeParams{
		ViolationDate: violationDate,
		VehiclePlate:  req.VehiclePlate,
		ContactName:   req.ContactName,
		Email:         req.Email,
		Address:       req.Address,
		EvidenceURLs:  req.EvidenceURLs,
	}
	if req.ServiceClass != nil {
		class := domain.ServiceClass(*req.ServiceClass)
		if !class.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidServiceClass, *req.ServiceClass)
		}
		params.ServiceClass = &class
	}

	// Readiness only moves the intake between collecting and
	// ready_for_payment; paid intakes keep their status even when the user
	// fixes contact details for a re-dispatch.
	if intake.Status == domain.IntakeStatusCollecting || intake.Status == domain.IntakeStatusReadyForPayment {
		merged := *intake
		applyIntakeUpdate(&merged, params)
		status := intakeReadiness(&merged)
		if status != intake.Status {
			params.Status = &status
		}
	}

	updated, err := s.repo.UpdateIntake(ctx, intakeID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update intake: %w", err)
	}
	return updated, nil
}

// UpsertDraft writes draft content for an intake.
func (s *Service) UpsertDraft(ctx context.Context, intakeID uuid.UUID, req domain.UpsertDraftRequest) (*domain.Draft, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if !intake.Mutable() {
		return nil, ErrIntakeImmutable
	}
	if strings.TrimSpace(req.Statement) == "" {
		return nil, ErrDraftEmpty
	}

	draft := &domain.Draft{
		ID:               uuid.New(),
		IntakeID:         intakeID,
		Statement:        req.Statement,
		RefinedStatement: req.RefinedStatement,
		SignatureRef:     req.SignatureRef,
	}
	stored, err := s.repo.UpsertDraft(ctx, draft)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FinalizeDraft locks the draft content ahead of checkout. It demands
// everything the letter will need (statement, signature reference, complete
// contact address, a payment-ready intake) and re-validates the citation so a
// jurisdiction that got deny-listed during drafting is caught before money
// changes hands. Finalizing twice is a no-op.
func (s *Service) FinalizeDraft(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if !intake.Mutable() {
		return nil, ErrIntakeImmutable
	}

	draft, err := s.repo.FindDraftByIntakeID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.BodyStatement()) == "" {
		return nil, ErrDraftEmpty
	}
	if draft.SignatureRef == nil || strings.TrimSpace(*draft.SignatureRef) == "" {
		return nil, ErrSignatureRequired
	}
	if !intake.Address.Complete() {
		return nil, ErrAddressIncomplete
	}

	result := s.validator.Validate(citation.Input{
		CitationNumber: intake.CitationNumber,
		Jurisdiction:   intake.Jurisdiction,
		VehiclePlate:   stringValue(intake.VehiclePlate),
		ViolationDate:  intake.ViolationDate,
	})
	if result.ServiceBlocked {
		return nil, fmt.Errorf("%w: %s", ErrJurisdictionBlocked, result.State)
	}
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrCitationInvalid, result.Reason)
	}

	if intakeReadiness(intake) != domain.IntakeStatusReadyForPayment {
		return nil, ErrIntakeNotReady
	}
	if intake.Status == domain.IntakeStatusCollecting {
		status := domain.IntakeStatusReadyForPayment
		if _, err := s.repo.UpdateIntake(ctx, intakeID, store.UpdateIntakeParams{Status: &status}); err != nil {
			return nil, fmt.Errorf("failed to promote intake: %w", err)
		}
	}

	return s.repo.FinalizeDraft(ctx, intakeID)
}

// CreateCheckoutSession creates (or returns) the single open payment session
// for an intake.
//
// The dedupe guarantee comes from claiming the payment row before the
// provider call: the partial unique index on payments(intake_id) admits one
// non-terminal row, so concurrent requests collapse onto one session. When a
// concurrent winner has claimed but not yet attached its session, this call
// briefly waits for the attach rather than failing outright.
func (s *Service) CreateCheckoutSession(ctx context.Context, intakeID uuid.UUID, draftID *uuid.UUID) (*domain.CheckoutSession, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if intake.Status != domain.IntakeStatusReadyForPayment {
		if intake.Status == domain.IntakeStatusPaid || intake.Status == domain.IntakeStatusMailed {
			return nil, store.ErrIntakeAlreadyPaid
		}
		return nil, ErrIntakeNotReady
	}

	jurisdiction := s.registry.Lookup(citation.Code(intake.Jurisdiction))
	if jurisdiction == nil {
		return nil, fmt.Errorf("%w: %s", ErrJurisdictionBlocked, intake.Jurisdiction)
	}
	if jurisdiction.Blocked() {
		return nil, fmt.Errorf("%w: %s", ErrJurisdictionBlocked, jurisdiction.State)
	}

	draft, err := s.repo.FindDraftByIntakeID(ctx, intakeID)
	if err != nil {
		return nil, err
	}
	if draftID != nil && *draftID != draft.ID {
		return nil, ErrDraftMismatch
	}
	if !draft.Finalized() {
		return nil, ErrDraftNotFinalized
	}

	amount := s.settings.AppealFeeCents
	productName := "Parking citation appeal letter (standard mail)"
	if intake.ServiceClass == domain.ServiceClassCertified {
		amount += s.settings.CertifiedUpgradeCents
		productName = "Parking citation appeal letter (certified mail)"
	}

	payment := &domain.Payment{
		ID:             uuid.New(),
		IntakeID:       intakeID,
		DraftID:        draft.ID,
		Amount:         amount,
		Currency:       s.settings.Currency,
		IdempotencyKey: uuid.NewString(),
		CorrelationID:  uuid.New(),
	}

	for attempt := 1; ; attempt++ {
		existing, claimed, err := s.repo.ClaimCheckoutPayment(ctx, payment, s.settings.CheckoutClaimStaleWindow)
		if err != nil {
			if errors.Is(err, store.ErrCheckoutInProgress) && attempt < checkoutWaitAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(checkoutWaitBackoff):
				}
				continue
			}
			return nil, err
		}

		if !claimed {
			// A competing request already holds an open session; hand it back.
			log.Printf("CreateCheckoutSession: returning open session %s for intake %s", stringValue(existing.SessionID), intakeID)
			return &domain.CheckoutSession{SessionID: *existing.SessionID, CheckoutURL: *existing.CheckoutURL}, nil
		}

		claimedPayment := payment
		if existing != nil {
			// Stale claim taken over: reuse its identity so the provider-side
			// idempotency key stays stable for the row.
			claimedPayment = existing
		}
		return s.createProviderSession(ctx, intake, claimedPayment, productName)
	}
}

// createProviderSession performs the provider call for an owned claim and
// attaches the resulting session to the payment row.
func (s *Service) createProviderSession(ctx context.Context, intake *domain.Intake, payment *domain.Payment, productName string) (*domain.CheckoutSession, error) {
	session, err := s.stripeClient.CreateCheckoutSession(ctx, stripeclient.CreateCheckoutSessionParams{
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		ProductName:       productName,
		SuccessURL:        s.settings.CheckoutSuccessURL,
		CancelURL:         s.settings.CheckoutCancelURL,
		ClientReferenceID: intake.ID.String(),
		IdempotencyKey:    payment.IdempotencyKey,
		// Identifiers only. Names, addresses, and citation content must never
		// reach provider metadata.
		Metadata: map[string]string{
			"intake_id":      intake.ID.String(),
			"draft_id":       payment.DraftID.String(),
			"correlation_id": payment.CorrelationID.String(),
		},
	})
	if err != nil {
		if releaseErr := s.repo.ReleaseCheckoutClaim(ctx, payment.ID); releaseErr != nil {
			log.Printf("CRITICAL: Failed to release checkout claim %s after provider error: %v", payment.ID, releaseErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutSessionCreate, err)
	}

	if err := s.repo.AttachCheckoutSession(ctx, payment.ID, session.ID, session.URL); err != nil {
		// The session exists provider-side; the paid webhook can still find
		// the claim through the intake fallback, so surface the session.
		log.Printf("CRITICAL: Failed to attach session %s to payment %s: %v", session.ID, payment.ID, err)
	}

	log.Printf("CreateCheckoutSession: created session %s for intake %s amount %d %s", session.ID, intake.ID, payment.Amount, payment.Currency)
	return &domain.CheckoutSession{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// GetAppealStatus assembles the user-facing payment and mailing progress view.
func (s *Service) GetAppealStatus(ctx context.Context, intakeID uuid.UUID) (*domain.AppealStatus, error) {
	intake, err := s.repo.FindIntakeByID(ctx, intakeID)
	if err != nil {
		return nil, err
	}

	status := &domain.AppealStatus{
		IntakeStatus: intake.Status,
		ServiceClass: intake.ServiceClass,
	}

	payment, err := s.repo.FindLatestPaymentByIntakeID(ctx, intakeID)
	if err != nil && !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, err
	}
	if payment != nil {
		status.PaymentStatus = &payment.Status

		event, err := s.repo.FindLatestWebhookEventByPaymentID(ctx, payment.ID)
		if err != nil && !errors.Is(err, store.ErrWebhookEventNotFound) {
			return nil, err
		}
		if event != nil && event.NeedsReview && event.Stage == domain.StageAddress {
			status.NeedsAddressReview = true
		}
	}

	record, err := s.repo.FindMailRecordByIntakeID(ctx, intakeID)
	if err != nil && !errors.Is(err, store.ErrMailRecordNotFound) {
		return nil, err
	}
	if record != nil {
		status.Mailed = true
		status.ServiceClass = record.ServiceClass
		dispatchedAt := record.DispatchedAt
		status.DispatchedAt = &dispatchedAt
		status.ExpectedDeliveryDate = record.ExpectedDeliveryDate
		if record.ServiceClass.TrackingVisible() {
			status.TrackingNumber = record.TrackingNumber
		}
	}

	return status, nil
}

// intakeReadiness computes the collecting / ready_for_payment split: an
// intake is payable once every field the letter and the mail piece need is
// present.
func intakeReadiness(intake *domain.Intake) domain.IntakeStatus {
	if intake.CitationNumber != "" &&
		intake.Jurisdiction != "" &&
		intake.ViolationDate != nil &&
		intake.ContactName != "" &&
		intake.Email != "" &&
		intake.Address.Complete() {
		return domain.IntakeStatusReadyForPayment
	}
	return domain.IntakeStatusCollecting
}

// applyIntakeUpdate merges pending update params onto an intake copy so
// readiness can be computed against the post-update values.
func applyIntakeUpdate(intake *domain.Intake, params store.UpdateIntakeParams) {
	if params.ViolationDate != nil {
		intake.ViolationDate = params.ViolationDate
	}
	if params.VehiclePlate != nil {
		intake.VehiclePlate = params.VehiclePlate
	}
	if params.ContactName != nil {
		intake.ContactName = *params.ContactName
	}
	if params.Email != nil {
		intake.Email = *params.Email
	}
	if params.Address != nil {
		intake.Address = *params.Address
	}
	if params.EvidenceURLs != nil {
		intake.EvidenceURLs = *params.EvidenceURLs
	}
	if params.ServiceClass != nil {
		intake.ServiceClass = *params.ServiceClass
	}
}

func parseViolationDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidViolationDate, *raw)
	}
	return &parsed, nil
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
