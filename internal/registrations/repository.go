package registrations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simkas/backend/internal/models"
)

const registrationColumns = `id, user_id, event_id, token, status, payment_proof_url, registered_at`

// Repository persists registrations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.Token, &reg.Status, &reg.PaymentProofURL, &reg.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &reg, nil
}

// Create inserts a registration with the caller-assigned ID and token.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, user_id, event_id, token, status, payment_proof_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING registered_at`
	return r.pool.QueryRow(ctx, q, reg.ID, reg.UserID, reg.EventID, reg.Token, reg.Status, reg.PaymentProofURL).
		Scan(&reg.RegisteredAt)
}

// UpdateStatus overwrites the status and returns the updated row.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.Registration, error) {
	const q = `UPDATE registrations SET status = $2 WHERE id = $1 RETURNING ` + registrationColumns
	return scanRegistration(r.pool.QueryRow(ctx, q, id, status))
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	return scanRegistration(r.pool.QueryRow(ctx, q, id))
}

// GetByToken returns a registration by its attendance/matching token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE token = $1`
	return scanRegistration(r.pool.QueryRow(ctx, q, token))
}

// GetByUserAndEvent returns the earliest registration for the user+event pair.
func (r *Repository) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations
		WHERE user_id = $1 AND event_id = $2 ORDER BY registered_at LIMIT 1`
	return scanRegistration(r.pool.QueryRow(ctx, q, userID, eventID))
}

// GetByEventAndToken resolves a token scoped to one event, for certificate matching.
func (r *Repository) GetByEventAndToken(ctx context.Context, eventID uuid.UUID, token string) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND token = $2`
	return scanRegistration(r.pool.QueryRow(ctx, q, eventID, token))
}

// GetByEventAndTokenFold is the case-insensitive variant of GetByEventAndToken.
func (r *Repository) GetByEventAndTokenFold(ctx context.Context, eventID uuid.UUID, token string) (*models.Registration, error) {
	const q = `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND LOWER(token) = LOWER($2)`
	return scanRegistration(r.pool.QueryRow(ctx, q, eventID, token))
}
