// Package attendance converts a presented credential (token or QR-scanned
// session identity) into a recorded one-time attendance fact.
package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/internal/registrations"
)

var (
	// ErrInvalidToken is returned when no registration carries the token.
	ErrInvalidToken = errors.New("invalid attendance token")
	// ErrNotRegistered is returned when the user holds no registration for the event.
	ErrNotRegistered = errors.New("not registered for this event")
	// ErrNotEligible is returned when the registration is not approved.
	ErrNotEligible = errors.New("registration is not approved for attendance")
	// ErrAlreadyAttended is returned on a duplicate token-path attendance.
	ErrAlreadyAttended = errors.New("attendance already recorded")
)

// Store persists attendance facts. *Repository is the pgx implementation.
type Store interface {
	Create(ctx context.Context, registrationID uuid.UUID) (*models.Attendance, error)
}

// RegistrationReader resolves registrations; *registrations.Repository
// satisfies it. Lookups only, never writes.
type RegistrationReader interface {
	GetByToken(ctx context.Context, token string) (*models.Registration, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error)
}

// Recorder records attendance against approved registrations.
type Recorder struct {
	store  Store
	regs   RegistrationReader
	logger *zap.Logger
}

// NewRecorder creates an attendance recorder.
func NewRecorder(store Store, regs RegistrationReader, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, regs: regs, logger: logger}
}

// AttendWithToken records attendance for the registration carrying the
// token. A duplicate attempt fails with ErrAlreadyAttended.
func (r *Recorder) AttendWithToken(ctx context.Context, token string) (*models.Attendance, error) {
	reg, err := r.regs.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if reg.Status != models.RegistrationStatusApproved {
		return nil, ErrNotEligible
	}
	att, err := r.store.Create(ctx, reg.ID)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrAlreadyAttended
		}
		return nil, err
	}
	r.logger.Info("attendance recorded", zap.String("registration_id", reg.ID.String()))
	return att, nil
}

// AttendWithQR records attendance for the user's registration resolved from
// an authenticated QR scan. A duplicate scan reports alreadyRecorded without
// error: door operators scan repeatedly and a second scan is not a fault.
func (r *Recorder) AttendWithQR(ctx context.Context, eventID, userID uuid.UUID) (att *models.Attendance, alreadyRecorded bool, err error) {
	reg, err := r.regs.GetByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		if errors.Is(err, registrations.ErrNotFound) {
			return nil, false, ErrNotRegistered
		}
		return nil, false, err
	}
	if reg.Status != models.RegistrationStatusApproved {
		return nil, false, ErrNotEligible
	}
	att, err = r.store.Create(ctx, reg.ID)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, true, nil
		}
		return nil, false, err
	}
	r.logger.Info("attendance recorded via QR", zap.String("registration_id", reg.ID.String()))
	return att, false, nil
}
