package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simkas/backend/internal/models"
)

// ErrDuplicate is returned when an attendance row already exists for the
// registration. The unique constraint is the arbiter under concurrent scans.
var ErrDuplicate = errors.New("attendance already recorded")

// Repository persists attendance facts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the one-time attendance fact for a registration.
func (r *Repository) Create(ctx context.Context, registrationID uuid.UUID) (*models.Attendance, error) {
	const q = `INSERT INTO attendances (id, registration_id)
		VALUES (gen_random_uuid(), $1)
		RETURNING id, registration_id, attended_at`
	var att models.Attendance
	err := r.pool.QueryRow(ctx, q, registrationID).Scan(&att.ID, &att.RegistrationID, &att.AttendedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &att, nil
}
