/**
 * @description
 * Concurrency-sensitive persistence for the payment and fulfillment pipeline.
 * Everything here exists to keep two guarantees under at-least-once webhook
 * delivery and concurrent checkout clicks:
 *
 *   1. at most one open checkout per intake, and at most one paid payment,
 *      enforced by a partial unique index on payments(intake_id) covering
 *      rows in ('pending', 'paid');
 *   2. exactly one mail record per paid payment, enforced by a unique
 *      constraint on mail_records(payment_id);
 *
 * plus the webhook_events ledger (unique on provider_event_id) that absorbs
 * duplicate deliveries and records how far fulfillment progressed.
 *
 * The write pattern throughout is INSERT ... ON CONFLICT DO NOTHING with a
 * RowsAffected check to decide who won the race, and SELECT ... FOR UPDATE
 * inside a transaction when the loser needs to inspect or reclaim the
 * winner's row.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/curbappeal/appeal-service/internal/domain"
)

// ClaimCheckoutPayment reserves the single open-checkout slot for an intake by
// inserting the pending payment row before any provider call is made.
//
// Outcomes:
//   - claimed=true, existing=nil: the insert won; the caller owns the claim
//     and should create the provider session for payment.ID.
//   - claimed=true, existing!=nil: a previous claim died before attaching a
//     session and was stale past staleWindow; the caller takes it over and
//     should create the session for existing.ID with existing.IdempotencyKey.
//   - claimed=false, existing!=nil: an open session already exists; the
//     caller should return it instead of creating a new one.
//   - ErrIntakeAlreadyPaid: a paid payment exists for the intake.
//   - ErrCheckoutInProgress: another request holds a fresh claim that has not
//     attached its session yet.
func (r *PostgresRepository) ClaimCheckoutPayment(
	ctx context.Context,
	payment *domain.Payment,
	staleWindow time.Duration,
) (existing *domain.Payment, claimed bool, err error) {
	if staleWindow <= 0 {
		staleWindow = 2 * time.Minute
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin checkout claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO payments (
			id, intake_id, draft_id, status, amount, currency,
			idempotency_key, correlation_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (intake_id) WHERE status IN ('pending', 'paid') DO NOTHING
	`
	insertResult, err := tx.Exec(
		ctx,
		insertQuery,
		payment.ID,
		payment.IntakeID,
		payment.DraftID,
		domain.PaymentStatusPending,
		payment.Amount,
		payment.Currency,
		payment.IdempotencyKey,
		payment.CorrelationID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("reserve checkout claim: %w", err)
	}
	if insertResult.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	selectQuery := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE intake_id = $1 AND status IN ('pending', 'paid')
		FOR UPDATE
	`
	current, err := scanPayment(tx.QueryRow(ctx, selectQuery, payment.IntakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			// The competing row vanished between our insert and select
			// (released claim); the caller can simply retry.
			return nil, false, ErrCheckoutInProgress
		}
		return nil, false, fmt.Errorf("load competing payment: %w", err)
	}

	if current.Status == domain.PaymentStatusPaid {
		return current, false, ErrIntakeAlreadyPaid
	}

	if current.SessionID != nil && current.CheckoutURL != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return current, false, nil
	}

	// Pending with no session: the original request is either still talking
	// to the provider or died mid-flight. Only stale claims are taken over.
	if current.UpdatedAt.After(time.Now().UTC().Add(-staleWindow)) {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return nil, false, ErrCheckoutInProgress
	}

	reclaimQuery := `
		UPDATE payments
		SET amount = $2, currency = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND session_id IS NULL
	`
	if _, err := tx.Exec(ctx, reclaimQuery, current.ID, payment.Amount, payment.Currency); err != nil {
		return nil, false, fmt.Errorf("reclaim stale checkout claim: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	current.Amount = payment.Amount
	current.Currency = payment.Currency
	return current, true, nil
}

// AttachCheckoutSession stores the provider session on the claimed payment
// row so duplicate checkout requests can be answered with the open session.
func (r *PostgresRepository) AttachCheckoutSession(ctx context.Context, paymentID uuid.UUID, sessionID, checkoutURL string) error {
	query := `
		UPDATE payments
		SET session_id = $2, checkout_url = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, paymentID, sessionID, checkoutURL)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ReleaseCheckoutClaim removes a claim whose provider call failed. Only rows
// that never received a session are deleted; once a session exists the row
// must survive so the webhook for it can still be applied.
func (r *PostgresRepository) ReleaseCheckoutClaim(ctx context.Context, paymentID uuid.UUID) error {
	query := `
		DELETE FROM payments
		WHERE id = $1 AND status = 'pending' AND session_id IS NULL
	`
	_, err := r.db.Exec(ctx, query, paymentID)
	return err
}

// MarkPaymentPaid transitions the payment for a checkout session from pending
// to paid. transitioned reports whether this call performed the transition;
// a second delivery of the same event finds the row already paid and returns
// transitioned=false with the stored payment.
//
// A session can in rare cases pay out before AttachCheckoutSession commits.
// The fallback clause covers that window by matching the intake's session-less
// pending claim and attaching the session during the paid transition.
func (r *PostgresRepository) MarkPaymentPaid(
	ctx context.Context,
	sessionID string,
	intakeID uuid.UUID,
	paymentIntentID string,
) (*domain.Payment, bool, error) {
	updateQuery := `
		UPDATE payments
		SET status = $2, payment_intent_id = $3, updated_at = NOW()
		WHERE session_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, updateQuery, sessionID, domain.PaymentStatusPaid, paymentIntentID))
	if err == nil {
		return payment, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	payment, err = r.FindPaymentBySessionID(ctx, sessionID)
	if err == nil {
		return payment, false, nil
	}
	if err != ErrPaymentNotFound {
		return nil, false, err
	}

	fallbackQuery := `
		UPDATE payments
		SET status = $3, session_id = $1, payment_intent_id = $4, updated_at = NOW()
		WHERE intake_id = $2 AND status = 'pending' AND session_id IS NULL
		RETURNING ` + paymentColumns

	payment, err = scanPayment(r.db.QueryRow(ctx, fallbackQuery, sessionID, intakeID, domain.PaymentStatusPaid, paymentIntentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrPaymentNotFound
		}
		return nil, false, err
	}
	return payment, true, nil
}

// MarkPaymentFailedBySession transitions a pending payment to failed when the
// provider reports the session expired or the payment did not complete.
// Failing an already-terminal payment is a no-op that returns the stored row.
func (r *PostgresRepository) MarkPaymentFailedBySession(ctx context.Context, sessionID string) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE session_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, query, sessionID, domain.PaymentStatusFailed))
	if err == nil {
		return payment, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}
	return r.FindPaymentBySessionID(ctx, sessionID)
}

// MarkPaymentRefunded records a provider-side refund against a paid payment.
// Refunds are bookkeeping only; they never unwind fulfillment.
func (r *PostgresRepository) MarkPaymentRefunded(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE payment_intent_id = $1 AND status = 'paid'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRow(ctx, query, paymentIntentID, domain.PaymentStatusRefunded))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// CreateMailRecordIfAbsent inserts the mail record for a payment unless one
// already exists. created=false with the stored record means a concurrent or
// earlier dispatch already won; the caller must treat that as success and must
// not dispatch again.
func (r *PostgresRepository) CreateMailRecordIfAbsent(ctx context.Context, record *domain.MailRecord) (*domain.MailRecord, bool, error) {
	verificationJSON, err := json.Marshal(record.Verification)
	if err != nil {
		return nil, false, fmt.Errorf("marshal verification snapshot: %w", err)
	}

	insertQuery := `
		INSERT INTO mail_records (
			id, payment_id, carrier_letter_id, tracking_number, service_class,
			verification, expected_delivery_date, dispatched_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, NOW())
		ON CONFLICT (payment_id) DO NOTHING
	`
	insertResult, err := r.db.Exec(
		ctx,
		insertQuery,
		record.ID,
		record.PaymentID,
		record.CarrierLetterID,
		record.TrackingNumber,
		record.ServiceClass,
		string(verificationJSON),
		record.ExpectedDeliveryDate,
		record.DispatchedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert mail record: %w", err)
	}
	if insertResult.RowsAffected() == 1 {
		return record, true, nil
	}

	stored, err := r.FindMailRecordByPaymentID(ctx, record.PaymentID)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

const webhookEventColumns = `
	id, provider_event_id, event_type, status, COALESCE(stage, '') AS stage,
	payment_id, attempts, last_error, needs_review, created_at, updated_at
`

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	err := row.Scan(
		&event.ID,
		&event.ProviderEventID,
		&event.EventType,
		&event.Status,
		&event.Stage,
		&event.PaymentID,
		&event.Attempts,
		&event.LastError,
		&event.NeedsReview,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ClaimWebhookEvent records the first delivery of a provider event. The
// unique constraint on provider_event_id makes this the idempotency gate for
// at-least-once delivery: claimed=true means this delivery owns processing,
// claimed=false returns the ledger row a previous delivery created.
func (r *PostgresRepository) ClaimWebhookEvent(ctx context.Context, providerEventID, eventType string) (*domain.WebhookEvent, bool, error) {
	event := &domain.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Status:          domain.EventStatusReceived,
	}

	insertQuery := `
		INSERT INTO webhook_events (id, provider_event_id, event_type, status, attempts, needs_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, false, NOW(), NOW())
		ON CONFLICT (provider_event_id) DO NOTHING
	`
	insertResult, err := r.db.Exec(ctx, insertQuery, event.ID, providerEventID, eventType, event.Status)
	if err != nil {
		return nil, false, fmt.Errorf("claim webhook event: %w", err)
	}
	if insertResult.RowsAffected() == 1 {
		return event, true, nil
	}

	selectQuery := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE provider_event_id = $1`
	stored, err := scanWebhookEvent(r.db.QueryRow(ctx, selectQuery, providerEventID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, ErrWebhookEventNotFound
		}
		return nil, false, err
	}
	return stored, false, nil
}

// MarkWebhookEventApplied records that the payment transition for the event
// has been applied and a fulfillment attempt is starting. Resumed events pass
// through here again, which is what advances the attempt counter.
func (r *PostgresRepository) MarkWebhookEventApplied(ctx context.Context, eventID uuid.UUID, paymentID uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET status = $2, payment_id = $3, attempts = attempts + 1, needs_review = false, updated_at = NOW()
		WHERE id = $1 AND status IN ('received', 'applied', 'fulfillment_failed')
	`
	result, err := r.db.Exec(ctx, query, eventID, domain.EventStatusApplied, paymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

// MarkWebhookEventFulfilled closes the event after successful dispatch.
func (r *PostgresRepository) MarkWebhookEventFulfilled(ctx context.Context, eventID uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET status = $2, stage = NULL, last_error = NULL, needs_review = false, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, eventID, domain.EventStatusFulfilled)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

// MarkWebhookEventRejected closes the event without fulfillment. Boundary
// rejections (unknown records, bad metadata) flag the row for review;
// operator rejections clear the flag.
func (r *PostgresRepository) MarkWebhookEventRejected(ctx context.Context, eventID uuid.UUID, reason string, needsReview bool) error {
	query := `
		UPDATE webhook_events
		SET status = $2, last_error = $3, needs_review = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, eventID, domain.EventStatusRejected, reason, needsReview)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

// MarkWebhookEventFulfillmentFailed records the stage the pipeline stopped at
// so a retry can resume there instead of restarting from the top.
func (r *PostgresRepository) MarkWebhookEventFulfillmentFailed(
	ctx context.Context,
	eventID uuid.UUID,
	stage domain.FulfillmentStage,
	lastError string,
	needsReview bool,
) error {
	query := `
		UPDATE webhook_events
		SET status = $2, stage = $3, last_error = $4, needs_review = $5, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, eventID, domain.EventStatusFulfillmentFailed, stage, lastError, needsReview)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

// FindWebhookEventByID retrieves a webhook event ledger row.
func (r *PostgresRepository) FindWebhookEventByID(ctx context.Context, eventID uuid.UUID) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE id = $1`
	event, err := scanWebhookEvent(r.db.QueryRow(ctx, query, eventID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWebhookEventNotFound
		}
		return nil, err
	}
	return event, nil
}

// FindLatestWebhookEventByPaymentID retrieves the most recent ledger row for
// a payment, used to surface review state on the status endpoint.
func (r *PostgresRepository) FindLatestWebhookEventByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE payment_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	event, err := scanWebhookEvent(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWebhookEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (r *PostgresRepository) listWebhookEvents(ctx context.Context, query string, args ...any) ([]domain.WebhookEvent, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ListRetryableWebhookEvents returns failed events the sweep may retry:
// transient failures under the attempt cap that nobody has flagged for
// manual review. Eligibility backs off with the attempt count: after the
// nth failure an event waits 2^(n-1) minutes, capped at an hour, before the
// sweep sees it again.
func (r *PostgresRepository) ListRetryableWebhookEvents(ctx context.Context, maxAttempts int, limit int) ([]domain.WebhookEvent, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE status = 'fulfillment_failed'
		  AND needs_review = false
		  AND attempts < $1
		  AND updated_at < NOW() - (INTERVAL '1 minute' * LEAST(POWER(2, GREATEST(attempts, 1) - 1), 60))
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.listWebhookEvents(ctx, query, maxAttempts, limit)
}

// ListStaleAppliedWebhookEvents returns events stuck in 'applied' past the
// stale window, which happens when the process dies between applying the
// payment and finishing fulfillment. The sweep resumes these.
func (r *PostgresRepository) ListStaleAppliedWebhookEvents(ctx context.Context, staleWindow time.Duration, limit int) ([]domain.WebhookEvent, error) {
	if staleWindow <= 0 {
		staleWindow = 5 * time.Minute
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	staleSeconds := int(staleWindow.Seconds())
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE status = 'applied'
		  AND updated_at < NOW() - ($1 * INTERVAL '1 second')
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.listWebhookEvents(ctx, query, staleSeconds, limit)
}

// ListWebhookEventsNeedingReview returns the manual review queue, oldest first.
func (r *PostgresRepository) ListWebhookEventsNeedingReview(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE needs_review = true
		ORDER BY updated_at ASC
		LIMIT $1
	`
	return r.listWebhookEvents(ctx, query, limit)
}
