/**
 * @description
 * This file contains the HTTP handler for payment provider webhook deliveries.
 * The raw body must be read before any decoding because the signature covers
 * the exact bytes on the wire. Only identifier metadata is lifted out of the
 * verified payload; everything else is discarded.
 *
 * @notes
 * - Post-claim fulfillment failures still answer 200: the event row is
 *   persisted and the retry sweep owns recovery from there. Non-2xx answers
 *   are reserved for signature failures and claim-stage persistence errors,
 *   where provider redelivery is the recovery path.
 */

package api

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/pkg/stripeclient"
)

// StripeWebhookHandler receives signed payment events and feeds them into the
// fulfillment pipeline.
func (h *AppealHandlers) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	event, err := stripeclient.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Printf("level=warn component=api endpoint=stripe_webhook outcome=reject reason=invalid_signature err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}

	if err := h.service.ProcessPaymentEvent(r.Context(), paymentEventFromProvider(event)); err != nil {
		log.Printf("level=error component=api endpoint=stripe_webhook outcome=failed provider_event_id=%s err=%v", event.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Event not recorded")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// paymentEventFromProvider lifts the trusted identifiers out of a verified
// event envelope. Metadata that fails to parse comes through as zero values;
// the pipeline records such deliveries as rejected instead of dropping them.
func paymentEventFromProvider(event *stripeclient.Event) domain.PaymentEvent {
	object := event.Data.Object
	evt := domain.PaymentEvent{
		ProviderEventID: event.ID,
		EventType:       event.Type,
		SessionID:       object.ID,
		PaymentIntentID: object.PaymentIntent,
		CorrelationID:   object.Metadata["correlation_id"],
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
	}
	if id, err := uuid.Parse(object.Metadata["intake_id"]); err == nil {
		evt.IntakeID = id
	}
	if id, err := uuid.Parse(object.Metadata["draft_id"]); err == nil {
		evt.DraftID = id
	}
	return evt
}
