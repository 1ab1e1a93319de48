/**
 * @description
 * This file contains the HTTP handler for the anonymous citation validation
 * endpoint. Validation is pure computation against the jurisdiction registry,
 * so the only policy enforced here is rate limiting by client IP.
 */

package api

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/curbappeal/appeal-service/internal/app"
	"github.com/curbappeal/appeal-service/internal/citation"
)

// validateCitationRequest mirrors the first screen of the intake form.
type validateCitationRequest struct {
	CitationNumber string  `json:"citation_number"`
	Jurisdiction   string  `json:"jurisdiction,omitempty"`
	VehiclePlate   string  `json:"vehicle_plate,omitempty"`
	ViolationDate  *string `json:"violation_date,omitempty"` // YYYY-MM-DD
}

// ValidateCitationHandler scores a citation number before any intake exists.
// Always answers 200 with a result; an unrecognized citation is a valid
// outcome, not an error.
func (h *AppealHandlers) ValidateCitationHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowRequest(w, r, app.RateLimitScopeCitationValidate, clientIP(r), h.citationRatePerMinute) {
		return
	}

	var req validateCitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=validate_citation outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := citation.Input{
		CitationNumber: req.CitationNumber,
		Jurisdiction:   req.Jurisdiction,
		VehiclePlate:   req.VehiclePlate,
	}
	if req.ViolationDate != nil && strings.TrimSpace(*req.ViolationDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*req.ViolationDate))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Violation date must be formatted YYYY-MM-DD")
			return
		}
		input.ViolationDate = &parsed
	}

	result := h.service.ValidateCitation(input)
	h.writeJSON(w, http.StatusOK, result)
}

// clientIP returns the remote address with the port stripped. The router's
// RealIP middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
