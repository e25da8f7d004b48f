package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/simkas/backend/pkg/response"
)

// WebhookHandler handles gateway payment notifications.
type WebhookHandler struct {
	adapter *Adapter
	logger  *zap.Logger
}

// NewWebhookHandler creates a payment webhook handler.
func NewWebhookHandler(adapter *Adapter, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{adapter: adapter, logger: logger}
}

// PaymentNotification handles POST /payment/notification. Authenticated
// payloads are always acknowledged with {"status":"OK"} regardless of
// resolution result; unverifiable payloads are rejected and the gateway
// retries on non-2xx.
func (h *WebhookHandler) PaymentNotification(c *gin.Context) {
	var payload Notification
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, "invalid notification payload")
		return
	}
	if payload.OrderID == "" {
		response.BadRequest(c, "order_id required")
		return
	}

	if err := h.adapter.Process(c.Request.Context(), &payload); err != nil {
		switch {
		case errors.Is(err, ErrUnverified):
			response.Unauthorized(c, "notification could not be verified")
		case errors.Is(err, ErrGatewayUnavailable):
			h.logger.Error("gateway verification unavailable", zap.Error(err), zap.String("order_id", payload.OrderID))
			c.JSON(http.StatusBadGateway, gin.H{"status": "RETRY"})
		default:
			h.logger.Error("notification processing failed", zap.Error(err), zap.String("order_id", payload.OrderID))
			response.Internal(c, "notification processing failed")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
