package certificates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/pkg/response"
)

// MaxArchiveUploadSize caps the uploaded archive file itself (200MB).
const MaxArchiveUploadSize = 200 * 1024 * 1024

// DownloadPresigner turns a stored object URL into a short-lived download
// link. *storage.S3 satisfies it.
type DownloadPresigner interface {
	PresignDownloadByURL(ctx context.Context, objectURL string) (string, error)
}

// Handler exposes certificate admin HTTP endpoints.
type Handler struct {
	matcher   *Matcher
	repo      *Repository
	presigner DownloadPresigner
	logger    *zap.Logger
}

// NewHandler creates a certificates handler. presigner may be nil; listings
// then carry only the raw object URL.
func NewHandler(matcher *Matcher, repo *Repository, presigner DownloadPresigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{matcher: matcher, repo: repo, presigner: presigner, logger: logger}
}

// BulkUpload handles POST /certificates/bulk/:eventId (multipart zipFile).
func (h *Handler) BulkUpload(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	fileHeader, err := c.FormFile("zipFile")
	if err != nil {
		response.BadRequest(c, "zipFile is required")
		return
	}
	if fileHeader.Size > MaxArchiveUploadSize {
		response.BadRequest(c, "archive exceeds maximum size")
		return
	}

	// The matcher removes the temp archive after successful extraction.
	archivePath := filepath.Join(os.TempDir(), fmt.Sprintf("certs-%s-%s.zip", eventID, uuid.New()))
	if err := c.SaveUploadedFile(fileHeader, archivePath); err != nil {
		h.logger.Error("save uploaded archive failed", zap.Error(err))
		response.Internal(c, "failed to store uploaded archive")
		return
	}

	result, err := h.matcher.ProcessBulkUpload(c.Request.Context(), eventID, archivePath)
	if err != nil {
		_ = os.Remove(archivePath)
		if errors.Is(err, ErrInvalidArchive) {
			response.BadRequest(c, "archive could not be extracted")
			return
		}
		h.logger.Error("bulk upload failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to process bulk upload")
		return
	}
	response.OK(c, result)
}

// GetUnmatched handles GET /certificates/unmatched/:eventId.
func (h *Handler) GetUnmatched(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	files, err := h.matcher.UnmatchedFiles(eventID)
	if err != nil {
		h.logger.Error("list unmatched failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list unmatched files")
		return
	}
	response.OK(c, files)
}

// MapCertificates handles POST /certificates/map/:eventId.
func (h *Handler) MapCertificates(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var mappings []Mapping
	if err := c.ShouldBindJSON(&mappings); err != nil {
		response.BadRequest(c, "invalid mappings: "+err.Error())
		return
	}
	if len(mappings) == 0 {
		response.BadRequest(c, "at least one mapping is required")
		return
	}

	result, err := h.matcher.MapCertificates(c.Request.Context(), eventID, mappings)
	if err != nil {
		h.logger.Error("map certificates failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to map certificates")
		return
	}
	response.OK(c, gin.H{
		"message": fmt.Sprintf("%d certificate(s) mapped", result.Applied),
		"applied": result.Applied,
		"skipped": result.Skipped,
	})
}

// ListByEvent handles GET /certificates/:eventId.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	certs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list certificates")
		return
	}

	rows := make([]certificateRow, 0, len(certs))
	for _, cert := range certs {
		row := certificateRow{CertificateWithRegistration: cert}
		if h.presigner != nil {
			if url, err := h.presigner.PresignDownloadByURL(c.Request.Context(), cert.URL); err == nil {
				row.DownloadURL = url
			} else {
				h.logger.Warn("presign download failed", zap.Error(err), zap.String("certificate_id", cert.ID.String()))
			}
		}
		rows = append(rows, row)
	}
	response.OK(c, rows)
}

// certificateRow is the admin listing item: a certificate plus a short-lived
// download link when object storage is configured.
type certificateRow struct {
	models.CertificateWithRegistration
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Preview handles GET /certificates/preview/:eventId/:filename, serving a
// staged (not yet durable) file for the admin UI.
func (h *Handler) Preview(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	path, err := h.matcher.StagedPath(eventID, c.Param("filename"))
	if err != nil {
		response.NotFound(c, "file is not staged")
		return
	}
	c.File(path)
}
