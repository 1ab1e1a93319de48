/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL queries for the record-keeping side of the service:
 * intakes, drafts, payments, and mail records. The concurrency-sensitive
 * operations (checkout claims, webhook event claims, stage bookkeeping) live
 * in postgres_repository_fulfillment.go.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curbappeal/appeal-service/internal/domain"
)

var (
	ErrIntakeNotFound       = errors.New("intake not found")
	ErrDraftNotFound        = errors.New("draft not found")
	ErrDraftFinalized       = errors.New("draft already finalized")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrMailRecordNotFound   = errors.New("mail record not found")
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	ErrCheckoutInProgress   = errors.New("checkout already in progress")
	ErrIntakeAlreadyPaid    = errors.New("intake already paid")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const intakeColumns = `
	id, citation_number, jurisdiction, violation_date, vehicle_plate,
	contact_name, email,
	address_line1, COALESCE(address_line2, '') AS address_line2, address_city, address_state, address_postal_code,
	COALESCE(evidence_urls, '{}') AS evidence_urls,
	service_class, status, created_at, updated_at
`

func scanIntake(row pgx.Row) (*domain.Intake, error) {
	var intake domain.Intake
	err := row.Scan(
		&intake.ID,
		&intake.CitationNumber,
		&intake.Jurisdiction,
		&intake.ViolationDate,
		&intake.VehiclePlate,
		&intake.ContactName,
		&intake.Email,
		&intake.Address.Line1,
		&intake.Address.Line2,
		&intake.Address.City,
		&intake.Address.State,
		&intake.Address.PostalCode,
		&intake.EvidenceURLs,
		&intake.ServiceClass,
		&intake.Status,
		&intake.CreatedAt,
		&intake.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &intake, nil
}

// CreateIntake inserts a new intake record into the database.
func (r *PostgresRepository) CreateIntake(ctx context.Context, intake *domain.Intake) error {
	query := `
		INSERT INTO intakes (
			id, citation_number, jurisdiction, violation_date, vehicle_plate,
			contact_name, email,
			address_line1, address_line2, address_city, address_state, address_postal_code,
			evidence_urls, service_class, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(
		ctx,
		query,
		intake.ID,
		intake.CitationNumber,
		intake.Jurisdiction,
		intake.ViolationDate,
		intake.VehiclePlate,
		intake.ContactName,
		intake.Email,
		intake.Address.Line1,
		intake.Address.Line2,
		intake.Address.City,
		intake.Address.State,
		intake.Address.PostalCode,
		intake.EvidenceURLs,
		intake.ServiceClass,
		intake.Status,
	).Scan(&intake.CreatedAt, &intake.UpdatedAt)
}

// FindIntakeByID retrieves an intake from the database by its ID.
func (r *PostgresRepository) FindIntakeByID(ctx context.Context, intakeID uuid.UUID) (*domain.Intake, error) {
	query := `SELECT ` + intakeColumns + ` FROM intakes WHERE id = $1`
	intake, err := scanIntake(r.db.QueryRow(ctx, query, intakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntakeNotFound
		}
		return nil, err
	}
	return intake, nil
}

// UpdateIntake applies a partial update. COALESCE against the incoming NULLs
// keeps untouched columns at their stored values, so the caller only sets the
// fields the request actually carried.
func (r *PostgresRepository) UpdateIntake(ctx context.Context, intakeID uuid.UUID, params UpdateIntakeParams) (*domain.Intake, error) {
	query := `
		UPDATE intakes
		SET
			violation_date = COALESCE($2, violation_date),
			vehicle_plate = COALESCE($3, vehicle_plate),
			contact_name = COALESCE($4, contact_name),
			email = COALESCE($5, email),
			address_line1 = COALESCE($6, address_line1),
			address_line2 = CASE WHEN $6 IS NULL THEN address_line2 ELSE NULLIF($7, '') END,
			address_city = COALESCE($8, address_city),
			address_state = COALESCE($9, address_state),
			address_postal_code = COALESCE($10, address_postal_code),
			evidence_urls = COALESCE($11, evidence_urls),
			service_class = COALESCE($12, service_class),
			status = COALESCE($13, status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + intakeColumns

	var (
		addrLine1, addrCity, addrState, addrPostal *string
		addrLine2                                  string
	)
	if params.Address != nil {
		addrLine1 = &params.Address.Line1
		addrLine2 = params.Address.Line2
		addrCity = &params.Address.City
		addrState = &params.Address.State
		addrPostal = &params.Address.PostalCode
	}

	intake, err := scanIntake(r.db.QueryRow(
		ctx,
		query,
		intakeID,
		params.ViolationDate,
		params.VehiclePlate,
		params.ContactName,
		params.Email,
		addrLine1,
		addrLine2,
		addrCity,
		addrState,
		addrPostal,
		params.EvidenceURLs,
		params.ServiceClass,
		params.Status,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntakeNotFound
		}
		return nil, err
	}
	return intake, nil
}

// UpdateIntakeStatus sets the intake lifecycle status.
func (r *PostgresRepository) UpdateIntakeStatus(ctx context.Context, intakeID uuid.UUID, status domain.IntakeStatus) error {
	query := `UPDATE intakes SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, intakeID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrIntakeNotFound
	}
	return nil
}

const draftColumns = `id, intake_id, statement, refined_statement, signature_ref, finalized_at, created_at, updated_at`

func scanDraft(row pgx.Row) (*domain.Draft, error) {
	var draft domain.Draft
	err := row.Scan(
		&draft.ID,
		&draft.IntakeID,
		&draft.Statement,
		&draft.RefinedStatement,
		&draft.SignatureRef,
		&draft.FinalizedAt,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// UpsertDraft writes draft content for an intake. The unique constraint on
// intake_id gives each intake at most one draft; repeated writes update in
// place. A finalized draft is never overwritten here.
func (r *PostgresRepository) UpsertDraft(ctx context.Context, draft *domain.Draft) (*domain.Draft, error) {
	query := `
		INSERT INTO drafts (id, intake_id, statement, refined_statement, signature_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (intake_id)
		DO UPDATE SET
			statement = EXCLUDED.statement,
			refined_statement = EXCLUDED.refined_statement,
			signature_ref = EXCLUDED.signature_ref,
			updated_at = NOW()
		WHERE drafts.finalized_at IS NULL
		RETURNING ` + draftColumns

	stored, err := scanDraft(r.db.QueryRow(
		ctx,
		query,
		draft.ID,
		draft.IntakeID,
		draft.Statement,
		draft.RefinedStatement,
		draft.SignatureRef,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			// Conflict row exists but the DO UPDATE WHERE guard skipped it,
			// meaning the draft is already finalized.
			return nil, ErrDraftFinalized
		}
		return nil, err
	}
	return stored, nil
}

// FindDraftByIntakeID retrieves the draft belonging to an intake.
func (r *PostgresRepository) FindDraftByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE intake_id = $1`
	draft, err := scanDraft(r.db.QueryRow(ctx, query, intakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

// FindDraftByID retrieves a draft by its own ID.
func (r *PostgresRepository) FindDraftByID(ctx context.Context, draftID uuid.UUID) (*domain.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE id = $1`
	draft, err := scanDraft(r.db.QueryRow(ctx, query, draftID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

// FinalizeDraft stamps finalized_at on the intake's draft. Finalizing an
// already-finalized draft is a no-op that returns the stored row, so repeated
// finalize calls are safe.
func (r *PostgresRepository) FinalizeDraft(ctx context.Context, intakeID uuid.UUID) (*domain.Draft, error) {
	query := `
		UPDATE drafts
		SET finalized_at = COALESCE(finalized_at, NOW()), updated_at = NOW()
		WHERE intake_id = $1
		RETURNING ` + draftColumns

	draft, err := scanDraft(r.db.QueryRow(ctx, query, intakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return draft, nil
}

const paymentColumns = `
	id, intake_id, draft_id, session_id, checkout_url, payment_intent_id,
	status, amount, currency, idempotency_key, correlation_id, created_at, updated_at
`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment
	err := row.Scan(
		&payment.ID,
		&payment.IntakeID,
		&payment.DraftID,
		&payment.SessionID,
		&payment.CheckoutURL,
		&payment.PaymentIntentID,
		&payment.Status,
		&payment.Amount,
		&payment.Currency,
		&payment.IdempotencyKey,
		&payment.CorrelationID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindPaymentByID retrieves a payment by its ID.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// FindPaymentBySessionID retrieves a payment by the provider checkout session id.
func (r *PostgresRepository) FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE session_id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// FindLatestPaymentByIntakeID retrieves the most recent payment for an intake.
func (r *PostgresRepository) FindLatestPaymentByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE intake_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, intakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

const mailRecordColumns = `
	id, payment_id, carrier_letter_id, tracking_number, service_class,
	verification, expected_delivery_date, dispatched_at, created_at
`

func scanMailRecord(row pgx.Row) (*domain.MailRecord, error) {
	var (
		record           domain.MailRecord
		verificationJSON []byte
	)
	err := row.Scan(
		&record.ID,
		&record.PaymentID,
		&record.CarrierLetterID,
		&record.TrackingNumber,
		&record.ServiceClass,
		&verificationJSON,
		&record.ExpectedDeliveryDate,
		&record.DispatchedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(verificationJSON) > 0 {
		if err := json.Unmarshal(verificationJSON, &record.Verification); err != nil {
			return nil, fmt.Errorf("decode verification snapshot: %w", err)
		}
	}
	return &record, nil
}

// FindMailRecordByPaymentID retrieves the mail record dispatched for a payment.
func (r *PostgresRepository) FindMailRecordByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.MailRecord, error) {
	query := `SELECT ` + mailRecordColumns + ` FROM mail_records WHERE payment_id = $1`
	record, err := scanMailRecord(r.db.QueryRow(ctx, query, paymentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMailRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

// FindMailRecordByIntakeID retrieves the mail record for an intake via its
// paid payment. At most one exists because mail records are unique per
// payment and at most one payment per intake reaches paid.
func (r *PostgresRepository) FindMailRecordByIntakeID(ctx context.Context, intakeID uuid.UUID) (*domain.MailRecord, error) {
	query := `
		SELECT m.id, m.payment_id, m.carrier_letter_id, m.tracking_number, m.service_class,
		       m.verification, m.expected_delivery_date, m.dispatched_at, m.created_at
		FROM mail_records m
		JOIN payments p ON p.id = m.payment_id
		WHERE p.intake_id = $1
		ORDER BY m.created_at DESC
		LIMIT 1
	`
	record, err := scanMailRecord(r.db.QueryRow(ctx, query, intakeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMailRecordNotFound
		}
		return nil, err
	}
	return record, nil
}
