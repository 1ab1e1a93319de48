/**
 * @description
 * This file contains the HTTP handlers for the appeal-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/app"
	"github.com/curbappeal/appeal-service/internal/domain"
	"github.com/curbappeal/appeal-service/internal/store"
)

// HandlerConfig carries the request-policy knobs the handler layer owns:
// token issuing, webhook verification, and per-scope rate limits. Zero rate
// limits disable the corresponding check.
type HandlerConfig struct {
	IntakeTokenSecret     string
	IntakeTokenTTL        time.Duration
	StripeWebhookSecret   string
	CitationRatePerMinute int
	CheckoutRatePerMinute int
}

// AppealHandlers holds the application service that handlers will use.
type AppealHandlers struct {
	service *app.Service
	limiter *app.RedisRateLimiter

	tokenSecret           string
	tokenTTL              time.Duration
	webhookSecret         string
	citationRatePerMinute int
	checkoutRatePerMinute int
}

// NewAppealHandlers creates a new instance of AppealHandlers. limiter may be
// nil, which disables rate limiting.
func NewAppealHandlers(service *app.Service, limiter *app.RedisRateLimiter, cfg HandlerConfig) *AppealHandlers {
	if cfg.IntakeTokenTTL <= 0 {
		cfg.IntakeTokenTTL = 72 * time.Hour
	}
	return &AppealHandlers{
		service:               service,
		limiter:               limiter,
		tokenSecret:           cfg.IntakeTokenSecret,
		tokenTTL:              cfg.IntakeTokenTTL,
		webhookSecret:         cfg.StripeWebhookSecret,
		citationRatePerMinute: cfg.CitationRatePerMinute,
		checkoutRatePerMinute: cfg.CheckoutRatePerMinute,
	}
}

// CreateIntakeHandler opens a new intake from a validated citation. The
// response carries the access token every later intake-scoped call presents.
func (h *AppealHandlers) CreateIntakeHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_intake outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	intake, err := h.service.CreateIntake(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_intake outcome=failed err=%v", err)
		if errors.Is(err, app.ErrJurisdictionBlocked) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, app.ErrCitationInvalid) || errors.Is(err, app.ErrInvalidViolationDate) || errors.Is(err, app.ErrInvalidServiceClass) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Could not create intake")
		return
	}

	token, err := IssueIntakeToken(h.tokenSecret, intake.ID, h.tokenTTL)
	if err != nil {
		log.Printf("level=error component=api endpoint=create_intake outcome=failed reason=token_issue intake_id=%s err=%v", intake.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not issue intake token")
		return
	}

	h.writeJSON(w, http.StatusCreated, domain.IntakeResponse{Intake: intake, AccessToken: token})
}

// GetIntakeHandler returns an intake together with its draft when one exists.
func (h *AppealHandlers) GetIntakeHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	resp, err := h.service.GetIntake(r.Context(), intakeID)
	if err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_intake outcome=failed intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateIntakeHandler applies a partial update to an intake. After payment
// only the mailing address is editable; after mailing nothing is.
func (h *AppealHandlers) UpdateIntakeHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	var req domain.UpdateIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=update_intake outcome=reject reason=invalid_json intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	intake, err := h.service.UpdateIntake(r.Context(), intakeID, req)
	if err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake not found")
			return
		}
		if errors.Is(err, app.ErrIntakeImmutable) || errors.Is(err, app.ErrPaidIntakeFieldLocked) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, app.ErrInvalidViolationDate) || errors.Is(err, app.ErrInvalidServiceClass) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=update_intake outcome=failed intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not update intake")
		return
	}

	h.writeJSON(w, http.StatusOK, intake)
}

// UpsertDraftHandler writes draft content for an intake.
func (h *AppealHandlers) UpsertDraftHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	var req domain.UpsertDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=upsert_draft outcome=reject reason=invalid_json intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := h.service.UpsertDraft(r.Context(), intakeID, req)
	if err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake not found")
			return
		}
		if errors.Is(err, app.ErrIntakeImmutable) || errors.Is(err, store.ErrDraftFinalized) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, app.ErrDraftEmpty) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=upsert_draft outcome=failed intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusInternalServerError, "Could not save draft")
		return
	}

	h.writeJSON(w, http.StatusOK, draft)
}

// FinalizeDraftHandler locks the draft content ahead of checkout.
func (h *AppealHandlers) FinalizeDraftHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	draft, err := h.service.FinalizeDraft(r.Context(), intakeID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=finalize_draft outcome=failed intake_id=%s err=%v", intakeID, err)
		if errors.Is(err, store.ErrIntakeNotFound) || errors.Is(err, store.ErrDraftNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake or draft not found")
			return
		}
		if errors.Is(err, app.ErrDraftEmpty) || errors.Is(err, app.ErrSignatureRequired) || errors.Is(err, app.ErrAddressIncomplete) {
			h.writeError(w, http.StatusPreconditionFailed, err.Error())
			return
		}
		if errors.Is(err, app.ErrCitationInvalid) || errors.Is(err, app.ErrJurisdictionBlocked) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, app.ErrIntakeImmutable) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Could not finalize draft")
		return
	}

	h.writeJSON(w, http.StatusOK, draft)
}

// CreateCheckoutSessionHandler creates (or returns) the single open payment
// session for an intake. The optional draft_id in the body lets the client
// assert which draft version it expects to pay for.
func (h *AppealHandlers) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	if !h.allowRequest(w, r, app.RateLimitScopeCheckout, intakeID.String(), h.checkoutRatePerMinute) {
		return
	}

	var req struct {
		DraftID *uuid.UUID `json:"draft_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), intakeID, req.DraftID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_checkout outcome=failed intake_id=%s err=%v", intakeID, err)
		if errors.Is(err, store.ErrIntakeNotFound) || errors.Is(err, store.ErrDraftNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake or draft not found")
			return
		}
		if errors.Is(err, store.ErrIntakeAlreadyPaid) {
			h.writeError(w, http.StatusConflict, "Intake is already paid")
			return
		}
		if errors.Is(err, app.ErrIntakeNotReady) || errors.Is(err, app.ErrDraftNotFinalized) || errors.Is(err, app.ErrDraftMismatch) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, store.ErrCheckoutInProgress) {
			h.writeError(w, http.StatusConflict, "A checkout session is already being prepared. Please retry.")
			return
		}
		if errors.Is(err, app.ErrJurisdictionBlocked) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, app.ErrCheckoutSessionCreate) {
			h.writeError(w, http.StatusBadGateway, "Payment provider is unavailable. Please retry.")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Could not create checkout session")
		return
	}

	h.writeJSON(w, http.StatusCreated, session)
}

// GetAppealStatusHandler assembles the user-facing payment and mailing
// progress view.
func (h *AppealHandlers) GetAppealStatusHandler(w http.ResponseWriter, r *http.Request) {
	intakeID, ok := GetIntakeID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get intake ID from context")
		return
	}

	status, err := h.service.GetAppealStatus(r.Context(), intakeID)
	if err != nil {
		if errors.Is(err, store.ErrIntakeNotFound) {
			h.writeError(w, http.StatusNotFound, "Intake not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_status outcome=failed intake_id=%s err=%v", intakeID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// allowRequest consumes one slot from the rate limiter and answers 429 with a
// Retry-After header once the scope's budget is spent. Limiter errors let the
// request through.
func (h *AppealHandlers) allowRequest(w http.ResponseWriter, r *http.Request, scope, subject string, limit int) bool {
	if h.limiter == nil || limit <= 0 {
		return true
	}
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, subject, limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return true
	}
	if count > limit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please retry later.")
		return false
	}
	return true
}

// writeJSON is a helper for writing JSON responses.
func (h *AppealHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AppealHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
