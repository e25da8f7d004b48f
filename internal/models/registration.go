package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the authoritative payment/admission state.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusApproved  RegistrationStatus = "approved"
	RegistrationStatusRejected  RegistrationStatus = "rejected"
	RegistrationStatusExpired   RegistrationStatus = "expired"
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

// Valid reports whether s is one of the known registration statuses.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusApproved,
		RegistrationStatusRejected, RegistrationStatusExpired,
		RegistrationStatusCancelled:
		return true
	}
	return false
}

// Registration is a user's claim to participate in an event. The token is
// unique system-wide: it doubles as the attendance credential and as the
// certificate-matching key (filename stem must equal the token).
type Registration struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
	EventID         uuid.UUID          `json:"event_id"`
	Token           string             `json:"token"`
	Status          RegistrationStatus `json:"status"`
	PaymentProofURL *string            `json:"payment_proof_url,omitempty"`
	RegisteredAt    time.Time          `json:"registered_at"`
}
