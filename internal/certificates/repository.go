package certificates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simkas/backend/internal/models"
)

// ErrNoCertificate is returned when a registration has no certificate yet.
var ErrNoCertificate = errors.New("no certificate for registration")

// Repository persists certificates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a certificates repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or overwrites the certificate for a registration. At most
// one certificate exists per registration; a later upload wins.
func (r *Repository) Upsert(ctx context.Context, cert *models.Certificate) error {
	const q = `INSERT INTO certificates (id, registration_id, url)
		VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (registration_id) DO UPDATE SET url = EXCLUDED.url, issued_at = NOW()
		RETURNING id, issued_at`
	return r.pool.QueryRow(ctx, q, cert.RegistrationID, cert.URL).Scan(&cert.ID, &cert.IssuedAt)
}

// GetByRegistration returns the certificate for a registration, if any.
func (r *Repository) GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	const q = `SELECT id, registration_id, url, issued_at FROM certificates WHERE registration_id = $1`
	var c models.Certificate
	err := r.pool.QueryRow(ctx, q, registrationID).Scan(&c.ID, &c.RegistrationID, &c.URL, &c.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCertificate
		}
		return nil, err
	}
	return &c, nil
}

// ListByEvent returns certificates for an event joined with registration details.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.CertificateWithRegistration, error) {
	const q = `SELECT c.id, c.registration_id, c.url, c.issued_at, r.user_id, r.event_id, r.token, r.status
		FROM certificates c
		JOIN registrations r ON r.id = c.registration_id
		WHERE r.event_id = $1
		ORDER BY c.issued_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.CertificateWithRegistration
	for rows.Next() {
		var c models.CertificateWithRegistration
		if err := rows.Scan(&c.ID, &c.RegistrationID, &c.URL, &c.IssuedAt, &c.UserID, &c.EventID, &c.Token, &c.Status); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
