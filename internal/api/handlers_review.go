/**
 * @description
 * This file contains HTTP handlers for the internal operator surface: the
 * manual review queue and the fulfillment retry sweep. These endpoints sit
 * behind the internal API key middleware, not intake tokens.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/app"
	"github.com/curbappeal/appeal-service/internal/store"
)

// ListReviewQueueHandler returns events waiting on operator action.
func (h *AppealHandlers) ListReviewQueueHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.service.ListReviewQueue(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_review_queue outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Could not list review queue")
		return
	}

	h.writeJSON(w, http.StatusOK, events)
}

// ResumeFulfillmentHandler re-enters the fulfillment pipeline for a reviewed
// event, typically after the user fixed their mailing address. The response
// carries the event's post-attempt state; whether the attempt succeeded is
// read from it, not from the status code.
func (h *AppealHandlers) ResumeFulfillmentHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}

	event, err := h.service.ResumeFulfillment(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrWebhookEventNotFound) {
			h.writeError(w, http.StatusNotFound, "Webhook event not found")
			return
		}
		if errors.Is(err, app.ErrEventNotResumable) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=resume_fulfillment outcome=failed event_id=%s err=%v", eventID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not resume fulfillment")
		return
	}

	h.writeJSON(w, http.StatusOK, event)
}

// RejectReviewEventHandler closes a reviewed event without dispatching mail
// and fails the intake so the user-facing status stops promising a letter.
func (h *AppealHandlers) RejectReviewEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := h.service.RejectReviewEvent(r.Context(), eventID, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrWebhookEventNotFound) {
			h.writeError(w, http.StatusNotFound, "Webhook event not found")
			return
		}
		if errors.Is(err, app.ErrEventNotResumable) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=reject_review_event outcome=failed event_id=%s err=%v", eventID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not reject review event")
		return
	}

	h.writeJSON(w, http.StatusOK, event)
}

// SweepFulfillmentHandler triggers one retry sweep pass outside the schedule.
func (h *AppealHandlers) SweepFulfillmentHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.service.SweepFulfillment(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=sweep_fulfillment outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Sweep did not complete")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
