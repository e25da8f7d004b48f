// Package certificates reconciles bulk-uploaded certificate archives against
// registrations by token, uploads matches to durable storage, and stages
// non-matches for manual admin mapping.
package certificates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/internal/registrations"
	"github.com/simkas/backend/pkg/storage"
)

// RegistrationResolver resolves a certificate filename stem to a
// registration within one event. *registrations.Repository satisfies it.
type RegistrationResolver interface {
	GetByEventAndToken(ctx context.Context, eventID uuid.UUID, token string) (*models.Registration, error)
	GetByEventAndTokenFold(ctx context.Context, eventID uuid.UUID, token string) (*models.Registration, error)
}

// CertificateStore reads and upserts certificate rows. *Repository satisfies it.
type CertificateStore interface {
	Upsert(ctx context.Context, cert *models.Certificate) error
	GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*models.Certificate, error)
}

// Uploader stores certificate files durably. *storage.S3 satisfies it.
type Uploader interface {
	UploadCertificate(ctx context.Context, eventID, filename, contentType string, body io.Reader, size int64) (string, error)
	DeleteObjectByURL(ctx context.Context, objectURL string) error
}

// UnmatchedFile is a staged file whose stem matched no registration token.
type UnmatchedFile struct {
	Filename   string `json:"filename"`
	PreviewURL string `json:"previewUrl"`
}

// UploadFailedFile is a matched file whose durable upload failed. The file
// stays staged so the batch can be retried.
type UploadFailedFile struct {
	Filename       string    `json:"filename"`
	RegistrationID uuid.UUID `json:"registrationId"`
	Reason         string    `json:"reason"`
}

// BulkResult reports one bulk-upload batch.
type BulkResult struct {
	MatchedCount int                `json:"matched"`
	Unmatched    []UnmatchedFile    `json:"unmatched"`
	UploadFailed []UploadFailedFile `json:"uploadFailed"`
}

// Mapping assigns a staged file to a registration manually.
type Mapping struct {
	Filename       string    `json:"filename" binding:"required"`
	RegistrationID uuid.UUID `json:"registrationId" binding:"required"`
}

// MapResult reports a manual-mapping run. Skipped lists mappings whose file
// was absent or whose upload failed; partial application is acceptable.
type MapResult struct {
	Applied int      `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
}

// Matcher is the certificate bulk-matching service. A per-event mutex
// serializes batch processing, manual mapping and cleanup, so one call's
// staging-area clear cannot race another call's read.
type Matcher struct {
	staging         *Staging
	regs            RegistrationResolver
	certs           CertificateStore
	uploader        Uploader
	previewBaseURL  string
	caseInsensitive bool
	logger          *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewMatcher creates the certificate matcher. previewBaseURL is the public
// base used to build staged-file preview links.
func NewMatcher(staging *Staging, regs RegistrationResolver, certs CertificateStore, uploader Uploader, previewBaseURL string, caseInsensitive bool, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		staging:         staging,
		regs:            regs,
		certs:           certs,
		uploader:        uploader,
		previewBaseURL:  strings.TrimRight(previewBaseURL, "/"),
		caseInsensitive: caseInsensitive,
		logger:          logger,
		locks:           make(map[uuid.UUID]*sync.Mutex),
	}
}

// eventLock returns the mutex serializing staging-area access for one event.
func (m *Matcher) eventLock(eventID uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[eventID] = l
	}
	return l
}

func (m *Matcher) previewURL(eventID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/certificates/preview/%s/%s", m.previewBaseURL, eventID, url.PathEscape(filename))
}

func (m *Matcher) resolve(ctx context.Context, eventID uuid.UUID, stem string) (*models.Registration, error) {
	if m.caseInsensitive {
		return m.regs.GetByEventAndTokenFold(ctx, eventID, stem)
	}
	return m.regs.GetByEventAndToken(ctx, eventID, stem)
}

// ProcessBulkUpload runs one archive-extraction-and-match batch for an
// event. The staging area is cleared first, so a new upload replaces any
// prior incomplete batch; the archive at archivePath is discarded after
// successful extraction. Files are processed in sorted filename order.
func (m *Matcher) ProcessBulkUpload(ctx context.Context, eventID uuid.UUID, archivePath string) (*BulkResult, error) {
	lock := m.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.staging.Clear(eventID); err != nil {
		return nil, fmt.Errorf("clear staging area: %w", err)
	}
	if err := m.staging.Extract(eventID, archivePath); err != nil {
		return nil, err
	}
	if err := os.Remove(archivePath); err != nil {
		m.logger.Warn("discard uploaded archive failed", zap.Error(err), zap.String("path", archivePath))
	}

	files, err := m.staging.List(eventID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Unmatched: []UnmatchedFile{}, UploadFailed: []UploadFailedFile{}}
	for _, f := range files {
		stem := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
		reg, err := m.resolve(ctx, eventID, stem)
		if err != nil {
			if errors.Is(err, registrations.ErrNotFound) {
				result.Unmatched = append(result.Unmatched, UnmatchedFile{
					Filename:   f.Name,
					PreviewURL: m.previewURL(eventID, f.Name),
				})
				continue
			}
			return nil, fmt.Errorf("resolve token for %q: %w", f.Name, err)
		}

		if err := m.finalize(ctx, eventID, f.Name, reg.ID); err != nil {
			m.logger.Error("certificate upload failed, file left staged",
				zap.Error(err),
				zap.String("filename", f.Name),
				zap.String("registration_id", reg.ID.String()))
			result.UploadFailed = append(result.UploadFailed, UploadFailedFile{
				Filename:       f.Name,
				RegistrationID: reg.ID,
				Reason:         err.Error(),
			})
			continue
		}
		result.MatchedCount++
	}

	m.logger.Info("bulk upload processed",
		zap.String("event_id", eventID.String()),
		zap.Int("matched", result.MatchedCount),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.Int("upload_failed", len(result.UploadFailed)))
	return result, nil
}

// finalize uploads one staged file to durable storage, upserts the
// certificate row and removes the staged copy. On any failure the staged
// file is kept for retry. When the upsert replaces an earlier certificate
// stored under a different key, the orphaned object is deleted best-effort.
func (m *Matcher) finalize(ctx context.Context, eventID uuid.UUID, filename string, registrationID uuid.UUID) error {
	file, size, err := m.staging.Open(eventID, filename)
	if err != nil {
		return err
	}
	defer file.Close()

	var priorURL string
	if prior, err := m.certs.GetByRegistration(ctx, registrationID); err == nil {
		priorURL = prior.URL
	} else if !errors.Is(err, ErrNoCertificate) {
		return fmt.Errorf("load prior certificate: %w", err)
	}

	certURL, err := m.uploader.UploadCertificate(ctx, eventID.String(), filename, storage.ContentTypeForFilename(filename), file, size)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	cert := &models.Certificate{RegistrationID: registrationID, URL: certURL}
	if err := m.certs.Upsert(ctx, cert); err != nil {
		return fmt.Errorf("upsert certificate: %w", err)
	}
	if priorURL != "" && priorURL != certURL {
		if err := m.uploader.DeleteObjectByURL(ctx, priorURL); err != nil {
			m.logger.Warn("delete replaced certificate object failed", zap.Error(err), zap.String("url", priorURL))
		}
	}
	if err := m.staging.Remove(eventID, filename); err != nil {
		m.logger.Warn("remove staged file failed", zap.Error(err), zap.String("filename", filename))
	}
	return nil
}

// MapCertificates applies manual filename→registration mappings. Mappings
// whose file is absent are skipped with a warning rather than failing the
// batch; the last mapping for a registration wins. When the staging area is
// left empty it is removed.
func (m *Matcher) MapCertificates(ctx context.Context, eventID uuid.UUID, mappings []Mapping) (*MapResult, error) {
	lock := m.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	result := &MapResult{}
	for _, mapping := range mappings {
		if err := m.finalize(ctx, eventID, mapping.Filename, mapping.RegistrationID); err != nil {
			if errors.Is(err, ErrNotStaged) {
				m.logger.Warn("mapping skipped: file not staged",
					zap.String("filename", mapping.Filename),
					zap.String("event_id", eventID.String()))
			} else {
				m.logger.Warn("mapping skipped",
					zap.Error(err),
					zap.String("filename", mapping.Filename),
					zap.String("registration_id", mapping.RegistrationID.String()))
			}
			result.Skipped = append(result.Skipped, mapping.Filename)
			continue
		}
		result.Applied++
	}

	if err := m.staging.RemoveIfEmpty(eventID); err != nil {
		m.logger.Debug("staging cleanup skipped", zap.Error(err), zap.String("event_id", eventID.String()))
	}
	return result, nil
}

// UnmatchedFiles lists the staged files for an event with preview URLs.
func (m *Matcher) UnmatchedFiles(eventID uuid.UUID) ([]UnmatchedFile, error) {
	lock := m.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	files, err := m.staging.List(eventID)
	if err != nil {
		return nil, err
	}
	out := make([]UnmatchedFile, 0, len(files))
	for _, f := range files {
		out = append(out, UnmatchedFile{Filename: f.Name, PreviewURL: m.previewURL(eventID, f.Name)})
	}
	return out, nil
}

// StagedPath returns the on-disk path of a staged file for preview serving.
func (m *Matcher) StagedPath(eventID uuid.UUID, filename string) (string, error) {
	lock := m.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()
	return m.staging.Path(eventID, filename)
}
