package certificates

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/internal/registrations"
)

type fakeResolver struct {
	// tokens maps "<eventID>/<token>" to a registration.
	tokens map[string]*models.Registration
}

func (f *fakeResolver) key(eventID uuid.UUID, token string) string {
	return eventID.String() + "/" + token
}

func (f *fakeResolver) GetByEventAndToken(_ context.Context, eventID uuid.UUID, token string) (*models.Registration, error) {
	if reg, ok := f.tokens[f.key(eventID, token)]; ok {
		return reg, nil
	}
	return nil, registrations.ErrNotFound
}

func (f *fakeResolver) GetByEventAndTokenFold(_ context.Context, eventID uuid.UUID, token string) (*models.Registration, error) {
	for key, reg := range f.tokens {
		if strings.EqualFold(key, f.key(eventID, token)) {
			return reg, nil
		}
	}
	return nil, registrations.ErrNotFound
}

type fakeCertStore struct {
	upserts map[uuid.UUID]string // registration ID → latest URL
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{upserts: make(map[uuid.UUID]string)}
}

func (f *fakeCertStore) Upsert(_ context.Context, cert *models.Certificate) error {
	f.upserts[cert.RegistrationID] = cert.URL
	return nil
}

func (f *fakeCertStore) GetByRegistration(_ context.Context, registrationID uuid.UUID) (*models.Certificate, error) {
	url, ok := f.upserts[registrationID]
	if !ok {
		return nil, ErrNoCertificate
	}
	return &models.Certificate{ID: uuid.New(), RegistrationID: registrationID, URL: url}, nil
}

type fakeUploader struct {
	failFor map[string]bool // filenames whose upload fails
	uploads []string
	deleted []string
}

func (f *fakeUploader) UploadCertificate(_ context.Context, eventID, filename, _ string, body io.Reader, _ int64) (string, error) {
	if f.failFor[filename] {
		return "", fmt.Errorf("bucket unavailable")
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("https://certs.example.com/%s/%s", eventID, filename), nil
}

func (f *fakeUploader) DeleteObjectByURL(_ context.Context, objectURL string) error {
	f.deleted = append(f.deleted, objectURL)
	return nil
}

type matcherFixture struct {
	matcher  *Matcher
	staging  *Staging
	resolver *fakeResolver
	certs    *fakeCertStore
	uploader *fakeUploader
	eventID  uuid.UUID
}

func newMatcherFixture(t *testing.T, caseInsensitive bool) *matcherFixture {
	t.Helper()
	staging := NewStaging(t.TempDir(), 0, 0)
	resolver := &fakeResolver{tokens: make(map[string]*models.Registration)}
	certs := newFakeCertStore()
	uploader := &fakeUploader{failFor: make(map[string]bool)}
	matcher := NewMatcher(staging, resolver, certs, uploader, "https://api.example.com", caseInsensitive, nil)
	return &matcherFixture{
		matcher:  matcher,
		staging:  staging,
		resolver: resolver,
		certs:    certs,
		uploader: uploader,
		eventID:  uuid.New(),
	}
}

func (fx *matcherFixture) addRegistration(token string) *models.Registration {
	reg := &models.Registration{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		EventID: fx.eventID,
		Token:   token,
		Status:  models.RegistrationStatusApproved,
	}
	fx.resolver.tokens[fx.resolver.key(fx.eventID, token)] = reg
	return reg
}

func TestProcessBulkUpload_MatchesByFilenameStem(t *testing.T) {
	fx := newMatcherFixture(t, false)
	regA := fx.addRegistration("tokenA")
	regB := fx.addRegistration("tokenB")
	archive := writeZip(t, map[string]string{
		"tokenA.pdf":     "cert a",
		"tokenB.png":     "cert b",
		"unknown123.pdf": "stray",
	})

	result, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
	require.NoError(t, err)

	require.Equal(t, 2, result.MatchedCount)
	require.Empty(t, result.UploadFailed)
	require.Len(t, result.Unmatched, 1)
	require.Equal(t, "unknown123.pdf", result.Unmatched[0].Filename)
	require.Equal(t,
		fmt.Sprintf("https://api.example.com/certificates/preview/%s/unknown123.pdf", fx.eventID),
		result.Unmatched[0].PreviewURL)

	// Matched files got durable rows; the stray one stays staged.
	require.Contains(t, fx.certs.upserts, regA.ID)
	require.Contains(t, fx.certs.upserts, regB.ID)
	require.Equal(t, []string{"unknown123.pdf"}, stagedNames(t, fx.staging, fx.eventID))

	// The uploaded archive is discarded.
	require.NoFileExists(t, archive)
}

func TestProcessBulkUpload_CaseInsensitiveMatch(t *testing.T) {
	fx := newMatcherFixture(t, true)
	reg := fx.addRegistration("TokenA")
	archive := writeZip(t, map[string]string{"tokena.pdf": "cert"})

	result, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
	require.NoError(t, err)
	require.Equal(t, 1, result.MatchedCount)
	require.Contains(t, fx.certs.upserts, reg.ID)
}

func TestProcessBulkUpload_ReplacesPriorBatch(t *testing.T) {
	fx := newMatcherFixture(t, false)
	first := writeZip(t, map[string]string{"stale.pdf": "old"})
	_, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, first)
	require.NoError(t, err)
	require.Equal(t, []string{"stale.pdf"}, stagedNames(t, fx.staging, fx.eventID))

	second := writeZip(t, map[string]string{"fresh.pdf": "new"})
	_, err = fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, second)
	require.NoError(t, err)
	require.Equal(t, []string{"fresh.pdf"}, stagedNames(t, fx.staging, fx.eventID))
}

func TestProcessBulkUpload_UploadFailureKeepsFileStaged(t *testing.T) {
	fx := newMatcherFixture(t, false)
	reg := fx.addRegistration("tokenA")
	fx.uploader.failFor["tokenA.pdf"] = true
	archive := writeZip(t, map[string]string{"tokenA.pdf": "cert"})

	result, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
	require.NoError(t, err)
	require.Equal(t, 0, result.MatchedCount)
	require.Len(t, result.UploadFailed, 1)
	require.Equal(t, reg.ID, result.UploadFailed[0].RegistrationID)
	require.NotContains(t, fx.certs.upserts, reg.ID)
	require.Equal(t, []string{"tokenA.pdf"}, stagedNames(t, fx.staging, fx.eventID))
}

func TestProcessBulkUpload_RejectsInvalidArchive(t *testing.T) {
	fx := newMatcherFixture(t, false)
	notZip := filepath.Join(t.TempDir(), "batch.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("not an archive"), 0o644))

	_, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, notZip)
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestMapCertificates_AppliesAndCleansUp(t *testing.T) {
	fx := newMatcherFixture(t, false)
	reg := fx.addRegistration("tokenA")
	archive := writeZip(t, map[string]string{"mismatched.pdf": "cert"})
	_, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
	require.NoError(t, err)

	result, err := fx.matcher.MapCertificates(context.Background(), fx.eventID, []Mapping{
		{Filename: "mismatched.pdf", RegistrationID: reg.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Applied)
	require.Empty(t, result.Skipped)
	require.Contains(t, fx.certs.upserts, reg.ID)

	// Staging area is empty and removed once the last file is mapped.
	require.NoDirExists(t, fx.staging.eventDir(fx.eventID))
}

func TestMapCertificates_SkipsMissingFiles(t *testing.T) {
	fx := newMatcherFixture(t, false)
	reg := fx.addRegistration("tokenA")

	result, err := fx.matcher.MapCertificates(context.Background(), fx.eventID, []Mapping{
		{Filename: "never-staged.pdf", RegistrationID: reg.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Applied)
	require.Equal(t, []string{"never-staged.pdf"}, result.Skipped)
	require.NotContains(t, fx.certs.upserts, reg.ID)
}

func TestMapCertificates_ReissueOverwritesURL(t *testing.T) {
	fx := newMatcherFixture(t, false)
	reg := fx.addRegistration("tokenA")

	for _, name := range []string{"first.pdf", "second.pdf"} {
		archive := writeZip(t, map[string]string{name: "cert"})
		_, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
		require.NoError(t, err)
		_, err = fx.matcher.MapCertificates(context.Background(), fx.eventID, []Mapping{
			{Filename: name, RegistrationID: reg.ID},
		})
		require.NoError(t, err)
	}

	require.Equal(t,
		fmt.Sprintf("https://certs.example.com/%s/second.pdf", fx.eventID),
		fx.certs.upserts[reg.ID])

	// The first object is orphaned by the reissue and gets cleaned up.
	require.Equal(t,
		[]string{fmt.Sprintf("https://certs.example.com/%s/first.pdf", fx.eventID)},
		fx.uploader.deleted)
}

func TestUnmatchedFiles_ListsStagedWithPreviewURLs(t *testing.T) {
	fx := newMatcherFixture(t, false)
	archive := writeZip(t, map[string]string{"b.pdf": "y", "a.pdf": "x"})
	_, err := fx.matcher.ProcessBulkUpload(context.Background(), fx.eventID, archive)
	require.NoError(t, err)

	files, err := fx.matcher.UnmatchedFiles(fx.eventID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.pdf", files[0].Filename)
	require.Equal(t, "b.pdf", files[1].Filename)
	require.Contains(t, files[0].PreviewURL, "/certificates/preview/")

	// No staging area at all is an empty listing, not an error.
	files, err = fx.matcher.UnmatchedFiles(uuid.New())
	require.NoError(t, err)
	require.Empty(t, files)
}
