package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// memStore is an in-memory Store with the same occupancy semantics as the
// Postgres repository, including the unique-slot backstop.
type memStore struct {
	mu           sync.Mutex
	providers    map[uuid.UUID]*clinic.Provider
	config       map[string]string
	appointments map[uuid.UUID]*clinic.Appointment
	holds        []*clinic.RecurringAppointment
	inSpecialty  map[uuid.UUID]map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		providers:    make(map[uuid.UUID]*clinic.Provider),
		config:       make(map[string]string),
		appointments: make(map[uuid.UUID]*clinic.Appointment),
		inSpecialty:  make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *memStore) GetProviderByID(_ context.Context, id uuid.UUID) (*clinic.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, clinic.ErrProviderNotFound
	}
	return p, nil
}

func (m *memStore) GetConfigValue(_ context.Context, key, fallback string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.config[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (m *memStore) HasScheduledAppointment(_ context.Context, providerID uuid.UUID, date time.Time, start clinic.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduledLocked(providerID, date, start), nil
}

func (m *memStore) scheduledLocked(providerID uuid.UUID, date time.Time, start clinic.TimeOfDay) bool {
	for _, a := range m.appointments {
		if a.Status == clinic.StatusScheduled && a.ProviderID == providerID &&
			a.Date.Equal(date) && a.Start == start {
			return true
		}
	}
	return false
}

func (m *memStore) HasRecurringBlock(_ context.Context, providerID uuid.UUID, weekday int, start clinic.TimeOfDay, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.Active && h.ProviderID == providerID && h.Weekday == weekday && h.Start == start &&
			!date.Before(h.StartDate) && (h.EndDate == nil || !date.After(*h.EndDate)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasScheduledInSpecialty(_ context.Context, patientID, specialtyID uuid.UUID, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inSpecialty[patientID][specialtyID], nil
}

func (m *memStore) CreateAppointment(_ context.Context, appt *clinic.Appointment, rec *clinic.RecurringAppointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduledLocked(appt.ProviderID, appt.Date, appt.Start) {
		return clinic.ErrSlotTaken
	}
	m.appointments[appt.ID] = appt
	if rec != nil {
		m.holds = append(m.holds, rec)
	}
	return nil
}

func (m *memStore) CancelAppointment(_ context.Context, id uuid.UUID, reason string, at time.Time) (*clinic.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != clinic.StatusScheduled {
		return nil, clinic.ErrAppointmentNotFound
	}
	a.Status = clinic.StatusCancelled
	a.CancelledAt = &at
	a.CancelReason = &reason
	return a, nil
}

func (m *memStore) ListUpcomingForPatient(_ context.Context, patientID uuid.UUID, from time.Time) ([]clinic.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clinic.AppointmentDetail
	for _, a := range m.appointments {
		if a.PatientID == patientID && a.Status == clinic.StatusScheduled && !a.Date.Before(from) {
			out = append(out, clinic.AppointmentDetail{Appointment: *a})
		}
	}
	return out, nil
}

func (m *memStore) ListAppointmentsByIDs(_ context.Context, ids []uuid.UUID) ([]clinic.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []clinic.AppointmentDetail
	for _, id := range ids {
		if a, ok := m.appointments[id]; ok && a.Status == clinic.StatusScheduled {
			out = append(out, clinic.AppointmentDetail{Appointment: *a})
		}
	}
	return out, nil
}

// memLocker serializes WithSlotLock per key the way the Redis locker does
// across processes.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func testRequest(store *memStore, recurringProvider bool) Request {
	providerID := uuid.New()
	store.providers[providerID] = &clinic.Provider{
		ID:                providerID,
		Name:              "Dra. Helena Costa",
		Active:            true,
		RecurringSchedule: recurringProvider,
	}
	return Request{
		PatientID:   uuid.New(),
		SpecialtyID: uuid.New(),
		Slot: scheduling.Slot{
			ProviderID:   providerID,
			ProviderName: "Dra. Helena Costa",
			LocationID:   uuid.New(),
			Date:         time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			Start:        clinic.MustTimeOfDay("09:00"),
		},
	}
}

func newTestService(store *memStore) *Service {
	return NewService(store, newMemLocker(), logging.New("error"))
}

func TestBookPersistsAppointment(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	req := testRequest(store, false)

	res, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)
	assert.Nil(t, res.Recurring)
	assert.Equal(t, clinic.StatusScheduled, res.Appointment.Status)
	assert.Equal(t, req.PatientID, res.Appointment.PatientID)
}

func TestBookSameSlotTwiceConflicts(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	req := testRequest(store, false)

	_, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	other := req
	other.PatientID = uuid.New()
	_, err = svc.Book(context.Background(), other)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestConcurrentBookingsOnlyOneWins(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	req := testRequest(store, false)

	const racers = 20
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := req
			r.PatientID = uuid.New()
			_, errs[i] = svc.Book(context.Background(), r)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may book the slot")
	assert.Len(t, store.appointments, 1)
}

func TestBookRecurringProviderCreatesHold(t *testing.T) {
	store := newMemStore()
	store.config[ConfigRecurringWeeks] = "6"
	svc := newTestService(store)
	req := testRequest(store, true)

	res, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Recurring)

	rec := res.Recurring
	assert.Equal(t, clinic.ClinicWeekday(req.Slot.Date), rec.Weekday)
	assert.Equal(t, req.Slot.Start, rec.Start)
	require.NotNil(t, rec.EndDate)
	assert.Equal(t, req.Slot.Date.AddDate(0, 0, 42), *rec.EndDate)

	// The hold blocks the same weekday and time for other patients.
	other := req
	other.PatientID = uuid.New()
	other.Slot.Date = req.Slot.Date.AddDate(0, 0, 7)
	_, err = svc.Book(context.Background(), other)
	assert.ErrorIs(t, err, ErrRecurringBlocked)
}

func TestBookDuplicateSpecialtyToggle(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	req := testRequest(store, false)
	store.inSpecialty[req.PatientID] = map[uuid.UUID]bool{req.SpecialtyID: true}

	// Toggle off by default: duplicate is allowed.
	_, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	store.config[ConfigBlockDuplicateSpecialties] = "true"
	other := testRequest(store, false)
	other.PatientID = req.PatientID
	other.SpecialtyID = req.SpecialtyID
	_, err = svc.Book(context.Background(), other)
	assert.ErrorIs(t, err, ErrDuplicateSpecialty)
}

func TestCancelRoundTrip(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	req := testRequest(store, false)

	res, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	upcoming, err := svc.ListCancellable(context.Background(), req.PatientID)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)

	cancelled, err := svc.Cancel(context.Background(), res.Appointment.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusCancelled, cancelled.Status)

	// Cancelling again fails: the status guard only matches scheduled rows.
	_, err = svc.Cancel(context.Background(), res.Appointment.ID, "patient request")
	assert.ErrorIs(t, err, clinic.ErrAppointmentNotFound)

	// The slot is free again.
	other := req
	other.PatientID = uuid.New()
	_, err = svc.Book(context.Background(), other)
	assert.NoError(t, err)
}
