package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate links a registration to its finalized certificate file in
// durable storage. Upserted by registration, so a later upload for the same
// registration overwrites the URL.
type Certificate struct {
	ID             uuid.UUID `json:"id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	URL            string    `json:"url"`
	IssuedAt       time.Time `json:"issued_at"`
}

// CertificateWithRegistration is the admin listing row: certificate joined
// with the owning registration's user and token.
type CertificateWithRegistration struct {
	Certificate
	UserID  uuid.UUID          `json:"user_id"`
	EventID uuid.UUID          `json:"event_id"`
	Token   string             `json:"token"`
	Status  RegistrationStatus `json:"status"`
}
