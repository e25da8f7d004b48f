package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/events"
	"github.com/simkas/backend/internal/middleware"
	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/pkg/response"
	"github.com/simkas/backend/pkg/storage"
)

// Handler exposes registration HTTP endpoints.
type Handler struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(ledger *Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// Register handles POST /registration/:eventId (multipart, optional paymentProof file).
func (h *Handler) Register(c *gin.Context) {
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

	var proof *ProofUpload
	if fileHeader, err := c.FormFile("paymentProof"); err == nil {
		if fileHeader.Size > storage.MaxProofFileSize {
			response.BadRequest(c, "payment proof exceeds maximum size")
			return
		}
		if !storage.ValidateProofFileType(fileHeader.Filename) {
			response.BadRequest(c, "unsupported payment proof file type")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			response.BadRequest(c, "could not read payment proof")
			return
		}
		defer file.Close()
		proof = &ProofUpload{
			Filename:    fileHeader.Filename,
			ContentType: storage.ContentTypeForFilename(fileHeader.Filename),
			Size:        fileHeader.Size,
			Body:        file,
		}
	}

	reg, err := h.ledger.Create(c.Request.Context(), userID, eventID, proof)
	if err != nil {
		switch {
		case errors.Is(err, ErrProofRequired):
			response.BadRequest(c, "payment proof is required for this event")
		case errors.Is(err, events.ErrNotFound):
			response.NotFound(c, "event not found")
		default:
			h.logger.Error("create registration failed", zap.Error(err), zap.String("event_id", eventID.String()))
			response.Internal(c, "failed to register")
		}
		return
	}
	response.Created(c, gin.H{"registration": reg})
}

// SetStatusRequest is the body for PATCH /registration/:id/payment-status.
type SetStatusRequest struct {
	Status models.RegistrationStatus `json:"status" binding:"required"`
}

// SetPaymentStatus handles PATCH /registration/:id/payment-status (admin).
func (h *Handler) SetPaymentStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	reg, err := h.ledger.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			response.BadRequest(c, "invalid status")
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, "registration not found")
		default:
			h.logger.Error("set status failed", zap.Error(err), zap.String("registration_id", id.String()))
			response.Internal(c, "failed to update status")
		}
		return
	}
	response.OK(c, gin.H{"registration": reg})
}

// Check handles GET /registration/:eventId/check.
func (h *Handler) Check(c *gin.Context) {
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
	registered, err := h.ledger.IsRegistered(c.Request.Context(), userID, eventID)
	if err != nil {
		h.logger.Error("registration check failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to check registration")
		return
	}
	response.OK(c, gin.H{"isRegistered": registered})
}
