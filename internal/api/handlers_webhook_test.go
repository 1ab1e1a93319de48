package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/app"
	"github.com/curbappeal/appeal-service/internal/citation"
	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/store"
	"github.com/curbappeal/appeal-service/pkg/stripeclient"
)

type webhookRepoStub struct {
	store.Repository

	claims        int
	lastEventID   string
	lastEventType string
}

func (s *webhookRepoStub) ClaimWebhookEvent(ctx context.Context, providerEventID, eventType string) (*domain.WebhookEvent, bool, error) {
	s.claims++
	s.lastEventID = providerEventID
	s.lastEventType = eventType
	// Absorbed duplicate: the ledger already holds a closed row for this id.
	return &domain.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Status:          domain.EventStatusFulfilled,
	}, false, nil
}

func webhookHandlers(t *testing.T, repo store.Repository, secret string) *AppealHandlers {
	t.Helper()
	registry, err := citation.NewRegistry()
	if err != nil {
		t.Fatalf("failed to build jurisdiction registry: %v", err)
	}
	svc := app.NewService(repo, nil, nil, nil, citation.NewValidator(registry, 0.5), registry, nil, app.Settings{})
	return NewAppealHandlers(svc, nil, HandlerConfig{StripeWebhookSecret: secret})
}

func TestStripeWebhookHandler_RejectsBadSignature(t *testing.T) {
	repo := &webhookRepoStub{}
	h := webhookHandlers(t, repo, "whsec_test")

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload(time.Now(), payload, "whsec_other"))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad signature, got %d", rec.Code)
	}
	if repo.claims != 0 {
		t.Fatal("expected no ledger claim for an unverified delivery")
	}
}

func TestStripeWebhookHandler_AcknowledgesAbsorbedDuplicate(t *testing.T) {
	repo := &webhookRepoStub{}
	h := webhookHandlers(t, repo, "whsec_test")

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_dup","type":"checkout.session.completed","created":%d,"data":{"object":{"id":"cs_1","payment_intent":"pi_1","metadata":{"intake_id":"%s","draft_id":"%s","correlation_id":"%s"}}}}`,
		time.Now().Unix(), uuid.New(), uuid.New(), uuid.New(),
	))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload(time.Now(), payload, "whsec_test"))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an absorbed duplicate, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.claims != 1 {
		t.Fatalf("expected one ledger claim, got %d", repo.claims)
	}
	if repo.lastEventID != "evt_dup" || repo.lastEventType != "checkout.session.completed" {
		t.Fatalf("expected provider identifiers recorded, got %q %q", repo.lastEventID, repo.lastEventType)
	}
	if !strings.Contains(rec.Body.String(), `"received":"true"`) {
		t.Fatalf("expected acknowledgement body, got %s", rec.Body.String())
	}
}

func TestStripeWebhookHandler_IgnoresUnhandledEventTypes(t *testing.T) {
	repo := &webhookRepoStub{}
	h := webhookHandlers(t, repo, "whsec_test")

	payload := []byte(fmt.Sprintf(`{"id":"evt_2","type":"payment_intent.created","created":%d,"data":{"object":{"id":"pi_2"}}}`, time.Now().Unix()))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeclient.SignPayload(time.Now(), payload, "whsec_test"))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unhandled event type, got %d", rec.Code)
	}
	if repo.claims != 0 {
		t.Fatal("expected no ledger claim for an unhandled event type")
	}
}

func TestValidateCitationHandler_ScoresCitation(t *testing.T) {
	h := webhookHandlers(t, &webhookRepoStub{}, "whsec_test")

	body := `{"citation_number":"912-345 6701","jurisdiction":"San Francisco","violation_date":"2026-08-20"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/citations/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ValidateCitationHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result citation.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected a valid citation, got %+v", result)
	}
	if result.NormalizedCitation != "9123456701" {
		t.Fatalf("expected normalized citation, got %q", result.NormalizedCitation)
	}
	if result.Jurisdiction != citation.SanFrancisco {
		t.Fatalf("expected sf jurisdiction, got %q", result.Jurisdiction)
	}
	if result.AppealDeadline == nil {
		t.Fatal("expected appeal deadline when a violation date is supplied")
	}
}

func TestValidateCitationHandler_RejectsMalformedDate(t *testing.T) {
	h := webhookHandlers(t, &webhookRepoStub{}, "whsec_test")

	body := `{"citation_number":"9123456701","violation_date":"08/20/2026"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/citations/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ValidateCitationHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed date, got %d", rec.Code)
	}
}
