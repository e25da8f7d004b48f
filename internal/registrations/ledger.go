// Package registrations owns the canonical registration state machine.
// Every status mutation in the system goes through the Ledger; the payment
// adapter, admin endpoints and attendance recorder never write status
// directly.
package registrations

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/models"
)

var (
	// ErrNotFound is returned when no registration matches the lookup.
	ErrNotFound = errors.New("registration not found")
	// ErrProofRequired is returned when a paid event registration carries no payment proof.
	ErrProofRequired = errors.New("payment proof is required for paid events")
	// ErrInvalidStatus is returned for an unknown target status.
	ErrInvalidStatus = errors.New("invalid registration status")
)

// ProofUpload carries an uploaded payment proof file.
type ProofUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists registrations. *Repository is the pgx implementation.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.Registration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByToken(ctx context.Context, token string) (*models.Registration, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error)
}

// EventCatalog provides read-only event facts.
type EventCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// ProofUploader stores payment proof files durably and returns their URL.
type ProofUploader interface {
	UploadProof(ctx context.Context, registrationID, filename, contentType string, body io.Reader, size int64) (string, error)
}

// Notifier publishes registration lifecycle events to the notification
// service. Delivery is fire-and-forget; the Ledger only logs failures.
type Notifier interface {
	RegistrationCreated(ctx context.Context, reg *models.Registration) error
	StatusChanged(ctx context.Context, reg *models.Registration) error
}

// Ledger mediates every registration state transition.
type Ledger struct {
	store    Store
	catalog  EventCatalog
	uploader ProofUploader
	notifier Notifier
	logger   *zap.Logger
}

// NewLedger creates the registration ledger. uploader and notifier may be nil
// (proof uploads then fail, notifications are skipped).
func NewLedger(store Store, catalog EventCatalog, uploader ProofUploader, notifier Notifier, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, catalog: catalog, uploader: uploader, notifier: notifier, logger: logger}
}

// Create registers a user for an event. Paid events require a proof upload;
// free events are approved immediately, paid ones start pending.
func (l *Ledger) Create(ctx context.Context, userID, eventID uuid.UUID, proof *ProofUpload) (*models.Registration, error) {
	event, err := l.catalog.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !event.IsFree() && proof == nil {
		return nil, ErrProofRequired
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	status := models.RegistrationStatusPending
	if event.IsFree() {
		status = models.RegistrationStatusApproved
	}
	reg := &models.Registration{
		ID:      uuid.New(),
		UserID:  userID,
		EventID: eventID,
		Token:   token,
		Status:  status,
	}

	if proof != nil {
		if l.uploader == nil {
			return nil, errors.New("proof storage unavailable")
		}
		url, err := l.uploader.UploadProof(ctx, reg.ID.String(), proof.Filename, proof.ContentType, proof.Body, proof.Size)
		if err != nil {
			return nil, fmt.Errorf("upload proof: %w", err)
		}
		reg.PaymentProofURL = &url
	}

	if err := l.store.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	if l.notifier != nil {
		if err := l.notifier.RegistrationCreated(ctx, reg); err != nil {
			l.logger.Warn("registration notification failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		}
	}
	return reg, nil
}

// SetStatus overwrites a registration's status. The overwrite is
// unconditional: callers (admin action, payment adapter) are trusted, and
// webhook re-delivery converges on the same end state.
func (l *Ledger) SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.Registration, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	reg, err := l.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if l.notifier != nil {
		if err := l.notifier.StatusChanged(ctx, reg); err != nil {
			l.logger.Warn("status notification failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		}
	}
	return reg, nil
}

// GetByID returns a registration by ID.
func (l *Ledger) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return l.store.GetByID(ctx, id)
}

// GetByToken returns a registration by its token.
func (l *Ledger) GetByToken(ctx context.Context, token string) (*models.Registration, error) {
	return l.store.GetByToken(ctx, token)
}

// IsRegistered reports whether the user holds a registration for the event.
func (l *Ledger) IsRegistered(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	_, err := l.store.GetByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// generateToken returns a 43-character URL-safe random token. Collisions are
// further excluded by the unique constraint on registrations.token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:43], nil
}
