package registrations

import (
	"context"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/pkg/queue"
)

// QueueNotifier publishes registration events onto the notification queue.
type QueueNotifier struct {
	queue *queue.Queue
}

// NewQueueNotifier creates a queue-backed notifier.
func NewQueueNotifier(q *queue.Queue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) payload(reg *models.Registration) queue.RegistrationEventPayload {
	return queue.RegistrationEventPayload{
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		EventID:        reg.EventID,
		Status:         string(reg.Status),
	}
}

// RegistrationCreated enqueues a registration-created event.
func (n *QueueNotifier) RegistrationCreated(ctx context.Context, reg *models.Registration) error {
	return n.queue.EnqueueRegistrationEvent(ctx, queue.JobTypeRegistrationCreated, n.payload(reg))
}

// StatusChanged enqueues a status-changed event.
func (n *QueueNotifier) StatusChanged(ctx context.Context, reg *models.Registration) error {
	return n.queue.EnqueueRegistrationEvent(ctx, queue.JobTypeStatusChanged, n.payload(reg))
}
