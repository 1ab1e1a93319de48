/**
 * @description
 * This file sets up the HTTP router for the appeal-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware: CORS for the browser intake flow, intake-token auth for
 * intake-scoped routes, and the internal API key for operator routes.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the public browser surface.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AppealRoutes creates and returns the router for the appeal service.
func AppealRoutes(h *AppealHandlers, tokenSecret, internalAPIKey string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	// RealIP runs first so rate limiting keys on the real client address.
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Anonymous: citation validation happens before any intake exists.
		r.Post("/citations/validate", h.ValidateCitationHandler)

		// Provider deliveries authenticate by signature, not by token.
		r.Post("/webhooks/stripe", h.StripeWebhookHandler)

		// Opening an intake issues the token the rest of the flow presents.
		r.Post("/intakes", h.CreateIntakeHandler)

		r.Route("/intakes/{intakeID}", func(r chi.Router) {
			r.Use(IntakeAuthMiddleware(tokenSecret))

			r.Get("/", h.GetIntakeHandler)
			r.Patch("/", h.UpdateIntakeHandler)
			r.Put("/draft", h.UpsertDraftHandler)
			r.Post("/draft/finalize", h.FinalizeDraftHandler)
			r.Post("/checkout", h.CreateCheckoutSessionHandler)
			r.Get("/status", h.GetAppealStatusHandler)
		})
	})

	// Operator surface for the review queue and the retry sweep.
	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(InternalKeyMiddleware(internalAPIKey))

		r.Get("/review", h.ListReviewQueueHandler)
		r.Post("/review/{eventID}/resume", h.ResumeFulfillmentHandler)
		r.Post("/review/{eventID}/reject", h.RejectReviewEventHandler)
		r.Post("/fulfillment/sweep", h.SweepFulfillmentHandler)
	})

	return r
}
