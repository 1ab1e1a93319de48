/**
 * @description
 * Mail dispatch domain models: service classes, cost-relevant carrier
 * options, the MailRecord audit row, and the address-verification snapshot
 * stored with it.
 *
 * @notes
 * - Tracking visibility is a pure function of service class: standard mail
 *   never surfaces a tracking number to the end user even when the carrier
 *   returns one; certified mail always does.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ServiceClass is the mail delivery tier.
type ServiceClass string

const (
	ServiceClassStandard  ServiceClass = "standard"
	ServiceClassCertified ServiceClass = "certified"
)

// Valid reports whether s is a known service class.
func (s ServiceClass) Valid() bool {
	return s == ServiceClassStandard || s == ServiceClassCertified
}

// TrackingVisible reports whether a tracking identifier may be shown to the
// end user for this class.
func (s ServiceClass) TrackingVisible() bool {
	return s == ServiceClassCertified
}

// Address placement modes understood by the carrier.
const (
	AddressPlacementTopFirstPage    = "top_first_page"
	AddressPlacementInsertBlankPage = "insert_blank_page"
)

// LetterOptions are the cost-relevant carrier options submitted with a
// letter. They vary by service class but never affect tracking visibility.
type LetterOptions struct {
	DoubleSided      bool   `json:"double_sided"`
	ReturnEnvelope   bool   `json:"return_envelope"`
	AddressPlacement string `json:"address_placement"`
	ExtraService     string `json:"extra_service,omitempty"` // "certified" or empty
}

// OptionsForClass maps a service class to the carrier options we submit.
// Standard mail is printed duplex to keep cost down; certified mail is
// single-sided with a return envelope and the certified extra service.
func OptionsForClass(class ServiceClass) LetterOptions {
	opts := LetterOptions{
		DoubleSided:      true,
		AddressPlacement: AddressPlacementTopFirstPage,
	}
	if class == ServiceClassCertified {
		opts.DoubleSided = false
		opts.ReturnEnvelope = true
		opts.ExtraService = "certified"
	}
	return opts
}

// Deliverability classification for a verified address.
const (
	DeliverabilityDeliverable   = "deliverable"
	DeliverabilityUndeliverable = "undeliverable"
	DeliverabilityUnverifiable  = "unverifiable"
)

// AddressVerification is the snapshot of an address-verification call. It is
// stored on the MailRecord for audit.
type AddressVerification struct {
	Deliverability string    `json:"deliverability"`
	Normalized     *Address  `json:"normalized,omitempty"`
	NeedsReview    bool      `json:"needs_review"` // true for soft passes (unverifiable)
	VerifiedAt     time.Time `json:"verified_at"`
}

// MailRecord is the append-only audit row for one dispatched letter. Maps to
// the `mail_records` table; the unique constraint on payment_id is what makes
// dispatch idempotent at the Payment level.
type MailRecord struct {
	ID                   uuid.UUID           `json:"id"`
	PaymentID            uuid.UUID           `json:"payment_id"`
	CarrierLetterID      string              `json:"carrier_letter_id"`
	TrackingNumber       *string             `json:"tracking_number,omitempty"`
	ServiceClass         ServiceClass        `json:"service_class"`
	Verification         AddressVerification `json:"verification"`
	ExpectedDeliveryDate *time.Time          `json:"expected_delivery_date,omitempty"`
	DispatchedAt         time.Time           `json:"dispatched_at"`
	CreatedAt            time.Time           `json:"created_at"`
}

// AppealStatus is the user-facing view of payment and mailing progress.
// Tracking fields are populated only when the service class exposes them.
type AppealStatus struct {
	IntakeStatus         IntakeStatus   `json:"intake_status"`
	PaymentStatus        *PaymentStatus `json:"payment_status,omitempty"`
	Mailed               bool           `json:"mailed"`
	ServiceClass         ServiceClass   `json:"service_class"`
	TrackingNumber       *string        `json:"tracking_number,omitempty"`
	ExpectedDeliveryDate *time.Time     `json:"expected_delivery_date,omitempty"`
	DispatchedAt         *time.Time     `json:"dispatched_at,omitempty"`
	NeedsAddressReview   bool           `json:"needs_address_review,omitempty"`
}
