package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/simkas/backend/internal/models"
	"github.com/simkas/backend/internal/registrations"
)

type fakeRegistrations struct {
	byToken map[string]*models.Registration
}

func (f *fakeRegistrations) GetByToken(_ context.Context, token string) (*models.Registration, error) {
	reg, ok := f.byToken[token]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	return reg, nil
}

func (f *fakeRegistrations) GetByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	for _, reg := range f.byToken {
		if reg.UserID == userID && reg.EventID == eventID {
			return reg, nil
		}
	}
	return nil, registrations.ErrNotFound
}

type fakeAttendanceStore struct {
	recorded map[uuid.UUID]*models.Attendance
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{recorded: make(map[uuid.UUID]*models.Attendance)}
}

func (f *fakeAttendanceStore) Create(_ context.Context, registrationID uuid.UUID) (*models.Attendance, error) {
	if _, ok := f.recorded[registrationID]; ok {
		return nil, ErrDuplicate
	}
	att := &models.Attendance{ID: uuid.New(), RegistrationID: registrationID, AttendedAt: time.Now()}
	f.recorded[registrationID] = att
	return att, nil
}

func approvedRegistration() *models.Registration {
	return &models.Registration{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		EventID: uuid.New(),
		Token:   "tok-approved",
		Status:  models.RegistrationStatusApproved,
	}
}

func TestAttendWithToken_RecordsOnce(t *testing.T) {
	reg := approvedRegistration()
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{reg.Token: reg}}
	store := newFakeAttendanceStore()
	recorder := NewRecorder(store, regs, nil)

	att, err := recorder.AttendWithToken(context.Background(), reg.Token)
	require.NoError(t, err)
	require.Equal(t, reg.ID, att.RegistrationID)

	// Second attempt fails but leaves exactly one row.
	_, err = recorder.AttendWithToken(context.Background(), reg.Token)
	require.ErrorIs(t, err, ErrAlreadyAttended)
	require.Len(t, store.recorded, 1)
}

func TestAttendWithToken_InvalidToken(t *testing.T) {
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{}}
	store := newFakeAttendanceStore()
	recorder := NewRecorder(store, regs, nil)

	_, err := recorder.AttendWithToken(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Empty(t, store.recorded)
}

func TestAttendWithToken_EligibilityGate(t *testing.T) {
	for _, status := range []models.RegistrationStatus{
		models.RegistrationStatusPending,
		models.RegistrationStatusRejected,
		models.RegistrationStatusExpired,
		models.RegistrationStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			reg := approvedRegistration()
			reg.Status = status
			regs := &fakeRegistrations{byToken: map[string]*models.Registration{reg.Token: reg}}
			store := newFakeAttendanceStore()
			recorder := NewRecorder(store, regs, nil)

			_, err := recorder.AttendWithToken(context.Background(), reg.Token)
			require.ErrorIs(t, err, ErrNotEligible)
			require.Empty(t, store.recorded)
		})
	}
}

func TestAttendWithQR_RecordsAndIsIdempotent(t *testing.T) {
	reg := approvedRegistration()
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{reg.Token: reg}}
	store := newFakeAttendanceStore()
	recorder := NewRecorder(store, regs, nil)

	att, already, err := recorder.AttendWithQR(context.Background(), reg.EventID, reg.UserID)
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, reg.ID, att.RegistrationID)

	// A repeat scan succeeds without creating a second row.
	_, already, err = recorder.AttendWithQR(context.Background(), reg.EventID, reg.UserID)
	require.NoError(t, err)
	require.True(t, already)
	require.Len(t, store.recorded, 1)
}

func TestAttendWithQR_NotRegistered(t *testing.T) {
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{}}
	store := newFakeAttendanceStore()
	recorder := NewRecorder(store, regs, nil)

	_, _, err := recorder.AttendWithQR(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestAttendWithQR_EligibilityGate(t *testing.T) {
	reg := approvedRegistration()
	reg.Status = models.RegistrationStatusPending
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{reg.Token: reg}}
	store := newFakeAttendanceStore()
	recorder := NewRecorder(store, regs, nil)

	_, _, err := recorder.AttendWithQR(context.Background(), reg.EventID, reg.UserID)
	require.ErrorIs(t, err, ErrNotEligible)
	require.Empty(t, store.recorded)
}

func TestAttendWithToken_DuplicateRace(t *testing.T) {
	// The store reports a uniqueness violation even when the recorder saw no
	// prior attendance; the recorder must translate it, not fail hard.
	reg := approvedRegistration()
	regs := &fakeRegistrations{byToken: map[string]*models.Registration{reg.Token: reg}}
	store := newFakeAttendanceStore()
	store.recorded[reg.ID] = &models.Attendance{ID: uuid.New(), RegistrationID: reg.ID}
	recorder := NewRecorder(store, regs, nil)

	_, err := recorder.AttendWithToken(context.Background(), reg.Token)
	require.ErrorIs(t, err, ErrAlreadyAttended)
}
