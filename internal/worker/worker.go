// Package worker delivers queued registration events to the notification
// service. Delivery is at-least-once: failed posts are retried and then
// dead-lettered.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/simkas/backend/pkg/queue"
)

// NotificationDispatcher consumes notification jobs and POSTs them to the
// configured notification service endpoint.
type NotificationDispatcher struct {
	endpoint   string
	httpClient *http.Client
	queue      *queue.Queue
	logger     *zap.Logger
}

// NewNotificationDispatcher creates a dispatcher for the given endpoint.
func NewNotificationDispatcher(endpoint string, q *queue.Queue, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      q,
		logger:     logger,
	}
}

// Process delivers one notification job.
func (d *NotificationDispatcher) Process(ctx context.Context, job *queue.Job) error {
	body, err := json.Marshal(map[string]any{
		"id":         job.ID,
		"type":       job.Type,
		"payload":    json.RawMessage(job.Payload),
		"created_at": job.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint status: %d", resp.StatusCode)
	}
	return nil
}

// Run starts the dispatch loop: dequeue, deliver, retry on error.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopping")
			return
		default:
		}

		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			d.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := d.Process(ctx, job); err != nil {
			d.logger.Error("notification delivery failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := d.queue.Retry(ctx, job); reErr != nil {
				d.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
		d.logger.Debug("notification delivered", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
}
