/**
 * @description
 * This file defines the core domain models for the appeal-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Lifecycle statuses are typed strings so the persisted state machines
 *   (intake, payment, webhook event) cannot drift to misspelled values.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntakeStatus is the lifecycle state of an Intake.
type IntakeStatus string

const (
	IntakeStatusCollecting      IntakeStatus = "collecting"
	IntakeStatusReadyForPayment IntakeStatus = "ready_for_payment"
	IntakeStatusPaid            IntakeStatus = "paid"
	IntakeStatusMailed          IntakeStatus = "mailed"
	IntakeStatusFailed          IntakeStatus = "failed"
)

// Address is a structured US postal address as collected from the user and
// as sent to the address-verification and mail-carrier APIs.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"` // two-letter USPS code
	PostalCode string `json:"postal_code"`
}

// Complete reports whether the address has every field dispatch requires.
func (a Address) Complete() bool {
	return a.Line1 != "" && a.City != "" && a.State != "" && a.PostalCode != ""
}

// Intake represents one citation-appeal attempt. It maps directly to the
// `intakes` table. An Intake is mutable while the user is still filling it
// in and becomes immutable once the letter is mailed.
type Intake struct {
	ID             uuid.UUID    `json:"id"`
	CitationNumber string       `json:"citation_number"`
	Jurisdiction   string       `json:"jurisdiction"`
	ViolationDate  *time.Time   `json:"violation_date,omitempty"`
	VehiclePlate   *string      `json:"vehicle_plate,omitempty"`
	ContactName    string       `json:"contact_name"`
	Email          string       `json:"email"`
	Address        Address      `json:"address"`
	EvidenceURLs   []string     `json:"evidence_urls,omitempty"`
	ServiceClass   ServiceClass `json:"service_class"`
	Status         IntakeStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Mutable reports whether user edits are still allowed at all. Once a letter
// is mailed (or the intake is closed as failed) the record is frozen.
func (i *Intake) Mutable() bool {
	return i.Status != IntakeStatusMailed && i.Status != IntakeStatusFailed
}

// Draft is the appeal letter content tied 1:1 to an Intake. Created when the
// user first writes a statement, finalized before checkout.
type Draft struct {
	ID               uuid.UUID  `json:"id"`
	IntakeID         uuid.UUID  `json:"intake_id"`
	Statement        string     `json:"statement"`
	RefinedStatement *string    `json:"refined_statement,omitempty"`
	SignatureRef     *string    `json:"signature_ref,omitempty"`
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Finalized reports whether the draft has been locked for checkout.
func (d *Draft) Finalized() bool {
	return d.FinalizedAt != nil
}

// BodyStatement returns the text the letter should carry: the refined
// statement when the refinement collaborator produced one, otherwise the
// user's raw statement.
func (d *Draft) BodyStatement() string {
	if d.RefinedStatement != nil && *d.RefinedStatement != "" {
		return *d.RefinedStatement
	}
	return d.Statement
}

// CreateIntakeRequest is the DTO for opening a new intake from a validated
// citation.
type CreateIntakeRequest struct {
	CitationNumber string  `json:"citation_number"`
	Jurisdiction   string  `json:"jurisdiction"`
	ViolationDate  *string `json:"violation_date,omitempty"` // YYYY-MM-DD
	VehiclePlate   *string `json:"vehicle_plate,omitempty"`
	ContactName    string  `json:"contact_name"`
	Email          string  `json:"email"`
	Address        Address `json:"address"`
	ServiceClass   string  `json:"service_class,omitempty"`
}

// UpdateIntakeRequest is the DTO for partial intake updates. Nil fields are
// left untouched.
type UpdateIntakeRequest struct {
	ViolationDate *string   `json:"violation_date,omitempty"`
	VehiclePlate  *string   `json:"vehicle_plate,omitempty"`
	ContactName   *string   `json:"contact_name,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Address       *Address  `json:"address,omitempty"`
	EvidenceURLs  *[]string `json:"evidence_urls,omitempty"`
	ServiceClass  *string   `json:"service_class,omitempty"`
}

// UpsertDraftRequest is the DTO for writing draft content.
type UpsertDraftRequest struct {
	Statement        string  `json:"statement"`
	RefinedStatement *string `json:"refined_statement,omitempty"`
	SignatureRef     *string `json:"signature_ref,omitempty"`
}

// IntakeResponse is returned on intake creation: the record plus the access
// token the client must present on every subsequent intake-scoped call.
type IntakeResponse struct {
	Intake      *Intake `json:"intake"`
	Draft       *Draft  `json:"draft,omitempty"`
	AccessToken string  `json:"access_token,omitempty"`
}
