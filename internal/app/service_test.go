package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/citation"
	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/store"
)

type lifecycleRepoStub struct {
	store.Repository

	intake     *domain.Intake
	draft      *domain.Draft
	payment    *domain.Payment
	event      *domain.WebhookEvent
	mailRecord *domain.MailRecord

	createdIntake  *domain.Intake
	updateParams   *store.UpdateIntakeParams
	upsertedDraft  *domain.Draft
	finalizeCalled bool
}

func (s *lifecycleRepoStub) CreateIntake(ctx context.Context, intake *domain.Intake) error {
	s.createdIntake = intake
	return nil
}

func (s *lifecycleRepoStub) FindIntakeByID(ctx context.Context, intakeID uuid.UUID) (*domain.Intake, error) {
	if s.intake == nil {
		return nil, store.ErrIntakeNotFound
	}
	return s.intake, nil
}

func (s *lifecycleRepoStub) UpdateIntake(ctx context.Context, intakeID uuid.UUID, params store.UpdateIntakeParams) (*domain.Intake, error) {
	s.updateParams = &params
	merged := *s.intake
	applyIntakeUpdate(&merged, params)
	if params.Status != nil {
		merged.Status = *params.Status
	}
	return &merged, nil
}

func (s *lifecycleRepoStub) FindDraftByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error) {
	if s.draft == nil {
		return nil, store.ErrDraftNotFound
	}
	return s.draft, nil
}

func (s *lifecycleRepoStub) UpsertDraft(ctx context.Context, draft *domain.Draft) (*domain.Draft, error) {
	s.upsertedDraft = draft
	return draft, nil
}

func (s *lifecycleRepoStub) FinalizeDraft(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error) {
	s.finalizeCalled = true
	if s.draft.FinalizedAt == nil {
		now := time.Now().UTC()
		s.draft.FinalizedAt = &now
	}
	return s.draft, nil
}

func (s *lifecycleRepoStub) FindLatestPaymentByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Payment, error) {
	if s.payment == nil {
		return nil, store.ErrPaymentNotFound
	}
	return s.payment, nil
}

func (s *lifecycleRepoStub) FindLatestWebhookEventByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.WebhookEvent, error) {
	if s.event == nil {
		return nil, store.ErrWebhookEventNotFound
	}
	return s.event, nil
}

func (s *lifecycleRepoStub) FindMailRecordByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.MailRecord, error) {
	if s.mailRecord == nil {
		return nil, store.ErrMailRecordNotFound
	}
	return s.mailRecord, nil
}

func lifecycleService(t *testing.T, repo *lifecycleRepoStub) *Service {
	t.Helper()
	registry := mustRegistry(t)
	return &Service{
		repo:      repo,
		validator: citation.NewValidator(registry, 0.5),
		registry:  registry,
	}
}

func TestCreateIntake_OpensReadyIntake(t *testing.T) {
	repo := &lifecycleRepoStub{}
	svc := lifecycleService(t, repo)

	violation := "2026-07-14"
	intake, err := svc.CreateIntake(context.Background(), domain.CreateIntakeRequest{
		CitationNumber: "912-345 6701",
		Jurisdiction:   "San Francisco",
		ViolationDate:  &violation,
		ContactName:    "Dana Whitfield",
		Email:          "dana.whitfield@example.com",
		Address: domain.Address{
			Line1:      "325 Hyde St",
			City:       "San Francisco",
			State:      "CA",
			PostalCode: "94109",
		},
	})
	if err != nil {
		t.Fatalf("expected intake, got %v", err)
	}
	if intake.CitationNumber != "9123456701" {
		t.Fatalf("expected normalized citation number, got %q", intake.CitationNumber)
	}
	if intake.Jurisdiction != string(citation.SanFrancisco) {
		t.Fatalf("expected resolved jurisdiction, got %q", intake.Jurisdiction)
	}
	if intake.Status != domain.IntakeStatusReadyForPayment {
		t.Fatalf("expected ready_for_payment, got %s", intake.Status)
	}
	if intake.ServiceClass != domain.ServiceClassStandard {
		t.Fatalf("expected standard class default, got %s", intake.ServiceClass)
	}
	if repo.createdIntake == nil {
		t.Fatal("expected intake persisted")
	}
}

func TestCreateIntake_IncompleteContactStaysCollecting(t *testing.T) {
	repo := &lifecycleRepoStub{}
	svc := lifecycleService(t, repo)

	intake, err := svc.CreateIntake(context.Background(), domain.CreateIntakeRequest{
		CitationNumber: "9123456701",
		Jurisdiction:   "sf",
	})
	if err != nil {
		t.Fatalf("expected intake, got %v", err)
	}
	if intake.Status != domain.IntakeStatusCollecting {
		t.Fatalf("expected collecting while contact fields are missing, got %s", intake.Status)
	}
}

func TestCreateIntake_RejectsBlockedJurisdiction(t *testing.T) {
	repo := &lifecycleRepoStub{}
	svc := lifecycleService(t, repo)

	_, err := svc.CreateIntake(context.Background(), domain.CreateIntakeRequest{
		CitationNumber: "212345678",
		Jurisdiction:   "austin",
	})
	if !errors.Is(err, ErrJurisdictionBlocked) {
		t.Fatalf("expected blocked jurisdiction error, got %v", err)
	}
	if repo.createdIntake != nil {
		t.Fatal("expected no intake for a blocked jurisdiction")
	}
}

func TestCreateIntake_RejectsInvalidCitation(t *testing.T) {
	repo := &lifecycleRepoStub{}
	svc := lifecycleService(t, repo)

	_, err := svc.CreateIntake(context.Background(), domain.CreateIntakeRequest{
		CitationNumber: "ABC-123",
		Jurisdiction:   "sf",
	})
	if !errors.Is(err, ErrCitationInvalid) {
		t.Fatalf("expected citation invalid error, got %v", err)
	}
}

func TestCreateIntake_RejectsMalformedViolationDate(t *testing.T) {
	repo := &lifecycleRepoStub{}
	svc := lifecycleService(t, repo)

	bad := "07/14/2026"
	_, err := svc.CreateIntake(context.Background(), domain.CreateIntakeRequest{
		CitationNumber: "9123456701",
		Jurisdiction:   "sf",
		ViolationDate:  &bad,
	})
	if !errors.Is(err, ErrInvalidViolationDate) {
		t.Fatalf("expected violation date error, got %v", err)
	}
}

func TestUpdateIntake_PromotesToReadyForPayment(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Email = ""
	intake.Status = domain.IntakeStatusCollecting
	repo := &lifecycleRepoStub{intake: intake}
	svc := lifecycleService(t, repo)

	email := "dana.whitfield@example.com"
	updated, err := svc.UpdateIntake(context.Background(), intake.ID, domain.UpdateIntakeRequest{Email: &email})
	if err != nil {
		t.Fatalf("expected update, got %v", err)
	}
	if updated.Status != domain.IntakeStatusReadyForPayment {
		t.Fatalf("expected promotion to ready_for_payment, got %s", updated.Status)
	}
	if repo.updateParams == nil || repo.updateParams.Status == nil || *repo.updateParams.Status != domain.IntakeStatusReadyForPayment {
		t.Fatalf("expected status change persisted with the update, got %+v", repo.updateParams)
	}
}

func TestUpdateIntake_PaidIntakeAcceptsAddressFix(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusPaid
	repo := &lifecycleRepoStub{intake: intake}
	svc := lifecycleService(t, repo)

	fixed := domain.Address{Line1: "500 Corrected Ave", City: "San Francisco", State: "CA", PostalCode: "94110"}
	updated, err := svc.UpdateIntake(context.Background(), intake.ID, domain.UpdateIntakeRequest{Address: &fixed})
	if err != nil {
		t.Fatalf("expected paid intake to accept an address fix, got %v", err)
	}
	if updated.Status != domain.IntakeStatusPaid {
		t.Fatalf("expected status to stay paid, got %s", updated.Status)
	}
	if repo.updateParams.Status != nil {
		t.Fatal("expected no status transition from an address fix after payment")
	}
}

func TestUpdateIntake_PaidIntakeLocksNonAddressFields(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusPaid
	repo := &lifecycleRepoStub{intake: intake}
	svc := lifecycleService(t, repo)

	class := string(domain.ServiceClassCertified)
	_, err := svc.UpdateIntake(context.Background(), intake.ID, domain.UpdateIntakeRequest{ServiceClass: &class})
	if !errors.Is(err, ErrPaidIntakeFieldLocked) {
		t.Fatalf("expected paid-field lock, got %v", err)
	}
}

func TestUpdateIntake_ImmutableOnceMailed(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusMailed
	repo := &lifecycleRepoStub{intake: intake}
	svc := lifecycleService(t, repo)

	name := "New Name"
	_, err := svc.UpdateIntake(context.Background(), intake.ID, domain.UpdateIntakeRequest{ContactName: &name})
	if !errors.Is(err, ErrIntakeImmutable) {
		t.Fatalf("expected immutable error, got %v", err)
	}
}

func TestUpsertDraft_RejectsEmptyStatement(t *testing.T) {
	intake, _ := readyIntakeFixture()
	repo := &lifecycleRepoStub{intake: intake}
	svc := lifecycleService(t, repo)

	_, err := svc.UpsertDraft(context.Background(), intake.ID, domain.UpsertDraftRequest{Statement: "   "})
	if !errors.Is(err, ErrDraftEmpty) {
		t.Fatalf("expected empty draft error, got %v", err)
	}
}

func TestFinalizeDraft_LocksContent(t *testing.T) {
	intake, draft := readyIntakeFixture()
	draft.FinalizedAt = nil
	repo := &lifecycleRepoStub{intake: intake, draft: draft}
	svc := lifecycleService(t, repo)

	finalized, err := svc.FinalizeDraft(context.Background(), intake.ID)
	if err != nil {
		t.Fatalf("expected finalize, got %v", err)
	}
	if !finalized.Finalized() {
		t.Fatal("expected finalized draft")
	}
	if !repo.finalizeCalled {
		t.Fatal("expected finalize persisted")
	}
}

func TestFinalizeDraft_RequiresSignature(t *testing.T) {
	intake, draft := readyIntakeFixture()
	draft.FinalizedAt = nil
	draft.SignatureRef = nil
	repo := &lifecycleRepoStub{intake: intake, draft: draft}
	svc := lifecycleService(t, repo)

	_, err := svc.FinalizeDraft(context.Background(), intake.ID)
	if !errors.Is(err, ErrSignatureRequired) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if repo.finalizeCalled {
		t.Fatal("expected finalize not persisted without a signature")
	}
}

func TestFinalizeDraft_RequiresCompleteAddress(t *testing.T) {
	intake, draft := readyIntakeFixture()
	draft.FinalizedAt = nil
	intake.Address.PostalCode = ""
	repo := &lifecycleRepoStub{intake: intake, draft: draft}
	svc := lifecycleService(t, repo)

	_, err := svc.FinalizeDraft(context.Background(), intake.ID)
	if !errors.Is(err, ErrAddressIncomplete) {
		t.Fatalf("expected address error, got %v", err)
	}
}

func TestFinalizeDraft_RefusesIncompleteIntake(t *testing.T) {
	intake, draft := readyIntakeFixture()
	draft.FinalizedAt = nil
	intake.Email = ""
	intake.Status = domain.IntakeStatusCollecting
	repo := &lifecycleRepoStub{intake: intake, draft: draft}
	svc := lifecycleService(t, repo)

	_, err := svc.FinalizeDraft(context.Background(), intake.ID)
	if !errors.Is(err, ErrIntakeNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
	if repo.finalizeCalled {
		t.Fatal("expected finalize not persisted for an incomplete intake")
	}
}

func TestFinalizeDraft_PromotesCollectingIntake(t *testing.T) {
	intake, draft := readyIntakeFixture()
	draft.FinalizedAt = nil
	intake.Status = domain.IntakeStatusCollecting
	repo := &lifecycleRepoStub{intake: intake, draft: draft}
	svc := lifecycleService(t, repo)

	finalized, err := svc.FinalizeDraft(context.Background(), intake.ID)
	if err != nil {
		t.Fatalf("expected finalize, got %v", err)
	}
	if !finalized.Finalized() {
		t.Fatal("expected finalized draft")
	}
	if repo.updateParams == nil || repo.updateParams.Status == nil || *repo.updateParams.Status != domain.IntakeStatusReadyForPayment {
		t.Fatalf("expected promotion to ready_for_payment persisted, got %+v", repo.updateParams)
	}
}

func TestGetAppealStatus_HidesTrackingForStandardMail(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusMailed
	tracking := "9407300000000000000001"
	dispatched := time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	repo := &lifecycleRepoStub{
		intake:  intake,
		payment: &domain.Payment{ID: uuid.New(), IntakeID: intake.ID, Status: domain.PaymentStatusPaid},
		mailRecord: &domain.MailRecord{
			PaymentID:      uuid.New(),
			ServiceClass:   domain.ServiceClassStandard,
			TrackingNumber: &tracking,
			DispatchedAt:   dispatched,
		},
	}
	svc := lifecycleService(t, repo)

	status, err := svc.GetAppealStatus(context.Background(), intake.ID)
	if err != nil {
		t.Fatalf("expected status, got %v", err)
	}
	if !status.Mailed {
		t.Fatal("expected mailed flag")
	}
	if status.TrackingNumber != nil {
		t.Fatalf("expected tracking hidden for standard mail, got %q", *status.TrackingNumber)
	}
	if status.DispatchedAt == nil || !status.DispatchedAt.Equal(dispatched) {
		t.Fatalf("expected dispatch timestamp surfaced, got %v", status.DispatchedAt)
	}
}

func TestGetAppealStatus_ShowsTrackingForCertifiedMail(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusMailed
	intake.ServiceClass = domain.ServiceClassCertified
	tracking := "9407300000000000000001"
	repo := &lifecycleRepoStub{
		intake:  intake,
		payment: &domain.Payment{ID: uuid.New(), IntakeID: intake.ID, Status: domain.PaymentStatusPaid},
		mailRecord: &domain.MailRecord{
			PaymentID:      uuid.New(),
			ServiceClass:   domain.ServiceClassCertified,
			TrackingNumber: &tracking,
		},
	}
	svc := lifecycleService(t, repo)

	status, err := svc.GetAppealStatus(context.Background(), intake.ID)
	if err != nil {
		t.Fatalf("expected status, got %v", err)
	}
	if status.TrackingNumber == nil || *status.TrackingNumber != tracking {
		t.Fatalf("expected tracking for certified mail, got %v", status.TrackingNumber)
	}
}

func TestGetAppealStatus_FlagsAddressReview(t *testing.T) {
	intake, _ := readyIntakeFixture()
	intake.Status = domain.IntakeStatusPaid
	payment := &domain.Payment{ID: uuid.New(), IntakeID: intake.ID, Status: domain.PaymentStatusPaid}
	repo := &lifecycleRepoStub{
		intake:  intake,
		payment: payment,
		event: &domain.WebhookEvent{
			ID:          uuid.New(),
			Status:      domain.EventStatusFulfillmentFailed,
			Stage:       domain.StageAddress,
			PaymentID:   &payment.ID,
			NeedsReview: true,
		},
	}
	svc := lifecycleService(t, repo)

	status, err := svc.GetAppealStatus(context.Background(), intake.ID)
	if err != nil {
		t.Fatalf("expected status, got %v", err)
	}
	if !status.NeedsAddressReview {
		t.Fatal("expected address review flag")
	}
	if status.Mailed {
		t.Fatal("expected not mailed")
	}
}
