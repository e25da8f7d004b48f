package registrations

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simkas/backend/internal/models"
)

type fakeStore struct {
	regs map[uuid.UUID]*models.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{regs: make(map[uuid.UUID]*models.Registration)}
}

func (f *fakeStore) Create(_ context.Context, reg *models.Registration) error {
	f.regs[reg.ID] = reg
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.RegistrationStatus) (*models.Registration, error) {
	reg, ok := f.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	reg.Status = status
	return reg, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, ok := f.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return reg, nil
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (*models.Registration, error) {
	for _, reg := range f.regs {
		if reg.Token == token {
			return reg, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	for _, reg := range f.regs {
		if reg.UserID == userID && reg.EventID == eventID {
			return reg, nil
		}
	}
	return nil, ErrNotFound
}

type fakeCatalog struct {
	events map[uuid.UUID]*models.Event
}

func (f *fakeCatalog) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, fmt.Errorf("event not found")
	}
	return event, nil
}

type fakeProofUploader struct {
	uploads []string
}

func (f *fakeProofUploader) UploadProof(_ context.Context, registrationID, filename, _ string, body io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("https://proofs.example.com/%s/%s", registrationID, filename), nil
}

type recordingNotifier struct {
	created []uuid.UUID
	changed []models.RegistrationStatus
}

func (n *recordingNotifier) RegistrationCreated(_ context.Context, reg *models.Registration) error {
	n.created = append(n.created, reg.ID)
	return nil
}

func (n *recordingNotifier) StatusChanged(_ context.Context, reg *models.Registration) error {
	n.changed = append(n.changed, reg.Status)
	return nil
}

func newEvents(freePriceCents, paidPriceCents int64) (*fakeCatalog, uuid.UUID, uuid.UUID) {
	freeID, paidID := uuid.New(), uuid.New()
	catalog := &fakeCatalog{events: map[uuid.UUID]*models.Event{
		freeID: {ID: freeID, Title: "Community Meetup", PriceCents: freePriceCents},
		paidID: {ID: paidID, Title: "Pro Workshop", PriceCents: paidPriceCents},
	}}
	return catalog, freeID, paidID
}

func TestCreate_FreeEventApprovedImmediately(t *testing.T) {
	store := newFakeStore()
	catalog, freeID, _ := newEvents(0, 150000)
	notifier := &recordingNotifier{}
	ledger := NewLedger(store, catalog, nil, notifier, nil)

	reg, err := ledger.Create(context.Background(), uuid.New(), freeID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusApproved, reg.Status)
	require.Nil(t, reg.PaymentProofURL)
	require.Len(t, reg.Token, 43)
	require.Equal(t, []uuid.UUID{reg.ID}, notifier.created)
}

func TestCreate_PaidEventRequiresProof(t *testing.T) {
	store := newFakeStore()
	catalog, _, paidID := newEvents(0, 150000)
	ledger := NewLedger(store, catalog, nil, nil, nil)

	_, err := ledger.Create(context.Background(), uuid.New(), paidID, nil)
	require.ErrorIs(t, err, ErrProofRequired)
	require.Empty(t, store.regs)
}

func TestCreate_PaidEventStartsPendingWithProof(t *testing.T) {
	store := newFakeStore()
	catalog, _, paidID := newEvents(0, 150000)
	uploader := &fakeProofUploader{}
	ledger := NewLedger(store, catalog, uploader, nil, nil)

	proof := &ProofUpload{
		Filename:    "transfer.jpg",
		ContentType: "image/jpeg",
		Size:        4,
		Body:        strings.NewReader("data"),
	}
	reg, err := ledger.Create(context.Background(), uuid.New(), paidID, proof)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStatusPending, reg.Status)
	require.NotNil(t, reg.PaymentProofURL)
	require.Contains(t, *reg.PaymentProofURL, "transfer.jpg")
	require.Equal(t, []string{"transfer.jpg"}, uploader.uploads)
}

func TestCreate_TokensAreUnique(t *testing.T) {
	store := newFakeStore()
	catalog, freeID, _ := newEvents(0, 150000)
	ledger := NewLedger(store, catalog, nil, nil, nil)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		reg, err := ledger.Create(context.Background(), uuid.New(), freeID, nil)
		require.NoError(t, err)
		require.False(t, seen[reg.Token], "duplicate token %q", reg.Token)
		seen[reg.Token] = true
	}
}

func TestSetStatus_OverwritesUnconditionally(t *testing.T) {
	store := newFakeStore()
	catalog, freeID, _ := newEvents(0, 150000)
	notifier := &recordingNotifier{}
	ledger := NewLedger(store, catalog, nil, notifier, nil)

	reg, err := ledger.Create(context.Background(), uuid.New(), freeID, nil)
	require.NoError(t, err)

	// No transition-legality check: approved → rejected → approved all land.
	for _, status := range []models.RegistrationStatus{
		models.RegistrationStatusRejected,
		models.RegistrationStatusApproved,
		models.RegistrationStatusApproved,
	} {
		updated, err := ledger.SetStatus(context.Background(), reg.ID, status)
		require.NoError(t, err)
		require.Equal(t, status, updated.Status)
	}
	require.Equal(t, []models.RegistrationStatus{
		models.RegistrationStatusRejected,
		models.RegistrationStatusApproved,
		models.RegistrationStatusApproved,
	}, notifier.changed)
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	ledger := NewLedger(newFakeStore(), nil, nil, nil, nil)

	_, err := ledger.SetStatus(context.Background(), uuid.New(), models.RegistrationStatus("paid-ish"))
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetStatus_UnknownRegistration(t *testing.T) {
	ledger := NewLedger(newFakeStore(), nil, nil, nil, nil)

	_, err := ledger.SetStatus(context.Background(), uuid.New(), models.RegistrationStatusApproved)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsRegistered(t *testing.T) {
	store := newFakeStore()
	catalog, freeID, _ := newEvents(0, 150000)
	ledger := NewLedger(store, catalog, nil, nil, nil)

	userID := uuid.New()
	_, err := ledger.Create(context.Background(), userID, freeID, nil)
	require.NoError(t, err)

	ok, err := ledger.IsRegistered(context.Background(), userID, freeID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.IsRegistered(context.Background(), uuid.New(), freeID)
	require.NoError(t, err)
	require.False(t, ok)
}
