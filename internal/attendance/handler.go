package attendance

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/middleware"
	"github.com/simkas/backend/pkg/response"
)

// Handler exposes attendance HTTP endpoints.
type Handler struct {
	recorder *Recorder
	logger   *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(recorder *Recorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{recorder: recorder, logger: logger}
}

// AttendRequest is the body for POST /events/:eventId/attend.
type AttendRequest struct {
	Token string `json:"token" binding:"required"`
}

// AttendWithToken handles POST /events/:eventId/attend.
func (h *Handler) AttendWithToken(c *gin.Context) {
	if _, err := uuid.Parse(c.Param("eventId")); err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req AttendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "token required")
		return
	}

	if _, err := h.recorder.AttendWithToken(c.Request.Context(), req.Token); err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			response.BadRequest(c, "invalid token")
		case errors.Is(err, ErrNotEligible):
			response.BadRequest(c, "registration is not approved")
		case errors.Is(err, ErrAlreadyAttended):
			response.BadRequest(c, "attendance already recorded")
		default:
			h.logger.Error("attend with token failed", zap.Error(err))
			response.Internal(c, "failed to record attendance")
		}
		return
	}
	response.OK(c, gin.H{"message": "attendance recorded"})
}

// AttendWithQR handles POST /events/:eventId/attend/qr. Identity comes from
// the authenticated session that scanned the QR code.
func (h *Handler) AttendWithQR(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}

	_, alreadyRecorded, err := h.recorder.AttendWithQR(c.Request.Context(), eventID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotRegistered):
			response.BadRequest(c, "not registered for this event")
		case errors.Is(err, ErrNotEligible):
			response.BadRequest(c, "registration is not approved")
		default:
			h.logger.Error("attend with QR failed", zap.Error(err), zap.String("event_id", eventID.String()))
			response.Internal(c, "failed to record attendance")
		}
		return
	}
	if alreadyRecorded {
		response.OK(c, gin.H{"message": "attendance already recorded"})
		return
	}
	response.OK(c, gin.H{"message": "attendance recorded"})
}
