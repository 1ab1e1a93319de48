package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/store"
)

type sweepRepoStub struct {
	store.Repository

	retryable []domain.WebhookEvent
	stale     []domain.WebhookEvent

	events  map[uuid.UUID]*domain.WebhookEvent
	payment *domain.Payment
	record  *domain.MailRecord

	resumedIDs []uuid.UUID
}

func (s *sweepRepoStub) ListRetryableWebhookEvents(ctx context.Context, maxAttempts int, limit int) ([]domain.WebhookEvent, error) {
	return s.retryable, nil
}

func (s *sweepRepoStub) ListStaleAppliedWebhookEvents(ctx context.Context, staleWindow time.Duration, limit int) ([]domain.WebhookEvent, error) {
	return s.stale, nil
}

func (s *sweepRepoStub) FindWebhookEventByID(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error) {
	event, ok := s.events[eventID]
	if !ok {
		return nil, store.ErrWebhookEventNotFound
	}
	return event, nil
}

func (s *sweepRepoStub) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return s.payment, nil
}

func (s *sweepRepoStub) MarkWebhookEventApplied(ctx context.Context, eventID uuid.UUID, paymentID uuid.UUID) error {
	s.resumedIDs = append(s.resumedIDs, eventID)
	event := s.events[eventID]
	event.Status = domain.EventStatusApplied
	event.Attempts++
	return nil
}

func (s *sweepRepoStub) MarkWebhookEventFulfilled(ctx context.Context, eventID uuid.UUID) error {
	s.events[eventID].Status = domain.EventStatusFulfilled
	return nil
}

func (s *sweepRepoStub) MarkWebhookEventRejected(ctx context.Context, eventID uuid.UUID, reason string, needsReview bool) error {
	event := s.events[eventID]
	event.Status = domain.EventStatusRejected
	event.NeedsReview = needsReview
	return nil
}

func (s *sweepRepoStub) FindMailRecordByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.MailRecord, error) {
	if s.record == nil {
		return nil, store.ErrMailRecordNotFound
	}
	return s.record, nil
}

func (s *sweepRepoStub) UpdateIntakeStatus(ctx context.Context, intakeID uuid.UUID, status domain.IntakeStatus) error {
	return nil
}

// sweepEvent builds a candidate whose resumed run short-circuits on an
// existing mail record, so no carrier traffic is needed.
func sweepFixture() (*sweepRepoStub, *domain.WebhookEvent, *domain.WebhookEvent) {
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:       paymentID,
		IntakeID: uuid.New(),
		Status:   domain.PaymentStatusPaid,
	}
	failed := &domain.WebhookEvent{
		ID:        uuid.New(),
		Status:    domain.EventStatusFulfillmentFailed,
		Stage:     domain.StageDispatch,
		PaymentID: &paymentID,
		Attempts:  1,
	}
	stalled := &domain.WebhookEvent{
		ID:        uuid.New(),
		Status:    domain.EventStatusApplied,
		PaymentID: &paymentID,
		Attempts:  1,
	}
	repo := &sweepRepoStub{
		retryable: []domain.WebhookEvent{*failed},
		stale:     []domain.WebhookEvent{*stalled},
		events: map[uuid.UUID]*domain.WebhookEvent{
			failed.ID:  failed,
			stalled.ID: stalled,
		},
		payment: payment,
		record: &domain.MailRecord{
			ID:              uuid.New(),
			PaymentID:       paymentID,
			CarrierLetterID: "ltr_sweep",
			ServiceClass:    domain.ServiceClassStandard,
		},
	}
	return repo, failed, stalled
}

func TestSweepFulfillment_ResumesBothQueues(t *testing.T) {
	repo, failed, stalled := sweepFixture()
	svc := &Service{repo: repo, settings: Settings{FulfillmentMaxAttempts: 5, FulfillmentStaleWindow: 10 * time.Minute}}

	result, err := svc.SweepFulfillment(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected sweep to complete, got %v", err)
	}
	if result.Scanned != 2 {
		t.Fatalf("expected both queues scanned, got %+v", *result)
	}
	if result.Fulfilled != 2 {
		t.Fatalf("expected both events closed against the mail record, got %+v", *result)
	}
	if repo.events[failed.ID].Status != domain.EventStatusFulfilled {
		t.Fatalf("expected failed event fulfilled, got %s", repo.events[failed.ID].Status)
	}
	if repo.events[stalled.ID].Status != domain.EventStatusFulfilled {
		t.Fatalf("expected stalled event fulfilled, got %s", repo.events[stalled.ID].Status)
	}
	if len(repo.resumedIDs) != 2 {
		t.Fatalf("expected two resume attempts, got %v", repo.resumedIDs)
	}
}

func TestSweepFulfillment_RefundedPaymentIsClosedNotRetried(t *testing.T) {
	repo, failed, _ := sweepFixture()
	repo.stale = nil
	repo.payment.Status = domain.PaymentStatusRefunded

	svc := &Service{repo: repo, settings: Settings{FulfillmentMaxAttempts: 5, FulfillmentStaleWindow: 10 * time.Minute}}

	result, err := svc.SweepFulfillment(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected sweep to complete, got %v", err)
	}
	if result.Scanned != 1 || result.Fulfilled != 0 {
		t.Fatalf("unexpected counters %+v", *result)
	}
	if repo.events[failed.ID].Status != domain.EventStatusRejected {
		t.Fatalf("expected refunded candidate rejected, got %s", repo.events[failed.ID].Status)
	}
	if len(repo.resumedIDs) != 0 {
		t.Fatal("expected no pipeline re-entry for a refunded payment")
	}
}

func TestSweepFulfillment_DeduplicatesOverlappingCandidates(t *testing.T) {
	repo, failed, _ := sweepFixture()
	repo.stale = []domain.WebhookEvent{*failed}

	svc := &Service{repo: repo, settings: Settings{FulfillmentMaxAttempts: 5, FulfillmentStaleWindow: 10 * time.Minute}}

	result, err := svc.SweepFulfillment(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected sweep to complete, got %v", err)
	}
	if result.Scanned != 1 {
		t.Fatalf("expected overlapping candidate swept once, got %+v", *result)
	}
}
