package models

import (
	"time"

	"github.com/google/uuid"
)

// Event holds the catalog facts this service consumes. The event catalog
// service owns writes; this core only reads price, schedule and capacity.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	PriceCents int64     `json:"price_cents"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsFree reports whether the event requires no payment.
func (e *Event) IsFree() bool { return e.PriceCents == 0 }
