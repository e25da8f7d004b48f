package models

import (
	"time"

	"github.com/google/uuid"
)

// Attendance is the one-time fact that a registration was used to attend.
// At most one row exists per registration (enforced by a unique constraint)
// and rows are never updated or deleted by this service.
type Attendance struct {
	ID             uuid.UUID `json:"id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	AttendedAt     time.Time `json:"attended_at"`
}
