package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/curbappeal/appeal-service/internal/domain"
)

const (
	defaultSweepLimit = 50
	maxSweepLimit     = 200
)

// SweepFulfillment runs one recovery pass over the webhook event ledger. It
// picks up two kinds of stragglers: events whose fulfillment failed
// transiently and still have attempts left, and events stuck in `applied`
// because a process died between the payment transition and the pipeline
// finishing. Each candidate is re-entered through ResumeFulfillment.
//
// Called on a schedule and from the internal sweep endpoint. Safe to run
// concurrently with live webhook traffic: resumption goes through the same
// idempotent pipeline the webhook path uses.
func (s *Service) SweepFulfillment(ctx context.Context, limit int) (*domain.SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if limit > maxSweepLimit {
		limit = maxSweepLimit
	}

	retryable, err := s.repo.ListRetryableWebhookEvents(ctx, s.settings.FulfillmentMaxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list retryable events: %w", err)
	}
	stale, err := s.repo.ListStaleAppliedWebhookEvents(ctx, s.settings.FulfillmentStaleWindow, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale applied events: %w", err)
	}

	result := &domain.SweepResult{}
	seen := make(map[uuid.UUID]struct{}, len(retryable)+len(stale))

	candidates := make([]domain.WebhookEvent, 0, len(retryable)+len(stale))
	candidates = append(candidates, retryable...)
	candidates = append(candidates, stale...)

	for _, event := range candidates {
		if _, dup := seen[event.ID]; dup {
			continue
		}
		seen[event.ID] = struct{}{}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Scanned++
		updated, resumeErr := s.ResumeFulfillment(ctx, event.ID)
		if resumeErr != nil {
			result.Errors++
			log.Printf("level=warn component=service flow=fulfillment_sweep msg=\"resume failed\" event_id=%s err=%v", event.ID, resumeErr)
			continue
		}

		switch {
		case updated.Status == domain.EventStatusFulfilled:
			result.Fulfilled++
		case updated.NeedsReview:
			result.Review++
		case updated.Status == domain.EventStatusFulfillmentFailed:
			result.Failed++
		}
	}

	if result.Scanned > 0 {
		log.Printf("level=info component=service flow=fulfillment_sweep msg=\"sweep pass complete\" scanned=%d fulfilled=%d failed=%d review=%d errors=%d",
			result.Scanned, result.Fulfilled, result.Failed, result.Review, result.Errors)
	}
	return result, nil
}
