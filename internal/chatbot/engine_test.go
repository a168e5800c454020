package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/booking"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/intent"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

type stubStore struct {
	patients    map[string]*clinic.Patient
	created     []*clinic.Patient
	locations   []clinic.Location
	specialties []clinic.Specialty
	config      map[string]string
	upcoming    []clinic.AppointmentDetail
	past        []clinic.AppointmentDetail
}

func (s *stubStore) GetPatientByNationalID(_ context.Context, nationalID string) (*clinic.Patient, error) {
	if p, ok := s.patients[nationalID]; ok {
		return p, nil
	}
	return nil, clinic.ErrPatientNotFound
}

func (s *stubStore) CreatePatient(_ context.Context, p *clinic.Patient) error {
	if _, ok := s.patients[p.NationalID]; ok {
		return clinic.ErrDuplicatePatient
	}
	s.created = append(s.created, p)
	if s.patients == nil {
		s.patients = make(map[string]*clinic.Patient)
	}
	s.patients[p.NationalID] = p
	return nil
}

func (s *stubStore) ListActiveLocations(context.Context) ([]clinic.Location, error) {
	return s.locations, nil
}

func (s *stubStore) ListSpecialtiesWithAvailability(context.Context, uuid.UUID) ([]clinic.Specialty, error) {
	return s.specialties, nil
}

func (s *stubStore) GetConfigValue(_ context.Context, key, fallback string) (string, error) {
	if v, ok := s.config[key]; ok {
		return v, nil
	}
	return fallback, nil
}

func (s *stubStore) ListUpcomingForPatient(context.Context, uuid.UUID, time.Time) ([]clinic.AppointmentDetail, error) {
	return s.upcoming, nil
}

func (s *stubStore) ListPastForPatient(context.Context, uuid.UUID, time.Time, int) ([]clinic.AppointmentDetail, error) {
	return s.past, nil
}

type stubSlots struct {
	slots []scheduling.Slot
	err   error
}

func (s *stubSlots) Available(context.Context, uuid.UUID, uuid.UUID) ([]scheduling.Slot, error) {
	return s.slots, s.err
}

type stubBooker struct {
	booked      []booking.Request
	bookErr     error
	recurring   *clinic.RecurringAppointment
	cancellable []clinic.AppointmentDetail
	cancelled   []uuid.UUID
	cancelErr   error
}

func (b *stubBooker) Book(_ context.Context, req booking.Request) (*booking.Result, error) {
	if b.bookErr != nil {
		return nil, b.bookErr
	}
	b.booked = append(b.booked, req)
	return &booking.Result{
		Appointment: &clinic.Appointment{
			ID:          uuid.New(),
			PatientID:   req.PatientID,
			ProviderID:  req.Slot.ProviderID,
			SpecialtyID: req.SpecialtyID,
			Date:        req.Slot.Date,
			Start:       req.Slot.Start,
			Status:      clinic.StatusScheduled,
		},
		Recurring: b.recurring,
	}, nil
}

func (b *stubBooker) Cancel(_ context.Context, id uuid.UUID, _ string) (*clinic.Appointment, error) {
	if b.cancelErr != nil {
		return nil, b.cancelErr
	}
	b.cancelled = append(b.cancelled, id)
	return &clinic.Appointment{ID: id, Status: clinic.StatusCancelled}, nil
}

func (b *stubBooker) ListCancellable(context.Context, uuid.UUID) ([]clinic.AppointmentDetail, error) {
	return b.cancellable, nil
}

func (b *stubBooker) CandidatesByIDs(_ context.Context, ids []uuid.UUID) ([]clinic.AppointmentDetail, error) {
	var out []clinic.AppointmentDetail
	for _, a := range b.cancellable {
		for _, id := range ids {
			if a.ID == id {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func testFixtures() (*stubStore, *stubSlots, *stubBooker) {
	locationID := uuid.New()
	specialtyID := uuid.New()
	store := &stubStore{
		patients: map[string]*clinic.Patient{},
		locations: []clinic.Location{
			{ID: locationID, Name: "Unidade Centro", City: "São Paulo", Active: true},
			{ID: uuid.New(), Name: "Unidade Moema", City: "São Paulo", Active: true},
		},
		specialties: []clinic.Specialty{
			{ID: specialtyID, Name: "Cardiologia", Active: true},
			{ID: uuid.New(), Name: "Dermatologia", Active: true},
		},
		config: map[string]string{},
	}
	slots := &stubSlots{slots: []scheduling.Slot{
		{
			ProviderID:   uuid.New(),
			ProviderName: "Dra. Helena Costa",
			LocationID:   locationID,
			Date:         time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
			Start:        clinic.MustTimeOfDay("09:00"),
		},
		{
			ProviderID:   uuid.New(),
			ProviderName: "Dr. Paulo Nunes",
			LocationID:   locationID,
			Date:         time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC),
			Start:        clinic.MustTimeOfDay("14:30"),
		},
	}}
	return store, slots, &stubBooker{}
}

func newTestEngine(store *stubStore, slots *stubSlots, booker *stubBooker) *Engine {
	log := logging.New("error")
	return NewEngine(store, slots, booker, intent.NewDetector(nil, log), nil, log)
}

func newConversation(state State, bag *Bag) *clinic.Conversation {
	return &clinic.Conversation{
		ID:        uuid.New(),
		SessionID: "sess-1",
		State:     string(state),
		Data:      encodeBag(bag),
	}
}

func TestFullSchedulingFlowWithRegistration(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	conv := newConversation(StateInitial, &Bag{})
	ctx := context.Background()

	send := func(msg string) *Reply {
		t.Helper()
		return engine.Handle(ctx, conv, msg)
	}

	reply := send("oi, quero marcar uma consulta")
	require.Equal(t, string(StateAwaitingID), conv.State)
	assert.True(t, reply.Success)

	reply = send("123.456.789-01")
	require.Equal(t, string(StateRegistration), conv.State)
	assert.Contains(t, reply.Message, "123.456.789-01")

	send("Maria da Silva")
	send("15/03/1990")
	send("11 98765-4321")
	send("pular")
	reply = send("particular")
	require.Equal(t, string(StateLocation), conv.State)
	assert.Contains(t, reply.Message, "Maria")
	require.Len(t, reply.Locations, 2)

	require.Len(t, store.created, 1)
	patient := store.created[0]
	assert.Equal(t, "12345678901", patient.NationalID)
	assert.Equal(t, clinic.PaymentSelfPay, patient.PaymentType)
	assert.Nil(t, patient.Email)
	require.NotNil(t, patient.BirthDate)
	assert.Equal(t, 1990, patient.BirthDate.Year())

	reply = send("1")
	require.Equal(t, string(StateSpecialty), conv.State)
	require.Len(t, reply.Specialties, 2)

	reply = send("cardiologia")
	require.Equal(t, string(StateTimeSlot), conv.State)
	require.Len(t, reply.Slots, 2)

	reply = send("1")
	require.Equal(t, string(StateConfirmation), conv.State)
	assert.Contains(t, reply.Message, "Dra. Helena Costa")

	reply = send("sim")
	require.Equal(t, string(StateFinished), conv.State)
	assert.True(t, reply.Success)
	assert.Equal(t, KindSuccess, reply.Kind)
	require.NotNil(t, reply.AppointmentID)

	require.Len(t, booker.booked, 1)
	req := booker.booked[0]
	assert.Equal(t, patient.ID, req.PatientID)
	assert.Equal(t, "Dra. Helena Costa", req.Slot.ProviderName)
}

func TestSymptomMatchesSpecialty(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	locID := store.locations[0].ID
	conv := newConversation(StateSpecialty, &Bag{LocationID: &locID, LocationName: "Unidade Centro"})

	reply := engine.Handle(context.Background(), conv, "estou com dor no peito")
	require.Equal(t, string(StateTimeSlot), conv.State)
	assert.Contains(t, reply.Message, "Cardiologia")
}

func TestGreetingResetsConversation(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	locID := store.locations[0].ID
	conv := newConversation(StateSpecialty, &Bag{LocationID: &locID, LocationName: "Unidade Centro"})

	reply := engine.Handle(context.Background(), conv, "bom dia!")
	assert.Equal(t, string(StateAwaitingID), conv.State)
	assert.True(t, reply.Success)

	var bag Bag
	require.NoError(t, json.Unmarshal(conv.Data, &bag))
	assert.Nil(t, bag.LocationID, "reset must drop collected data")
}

func TestCancellationKeywordOverridesFlow(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	locID := store.locations[0].ID
	conv := newConversation(StateTimeSlot, &Bag{LocationID: &locID})

	reply := engine.Handle(context.Background(), conv, "na verdade quero cancelar minha consulta")
	assert.Equal(t, string(StateCancellation), conv.State)
	assert.Contains(t, reply.Message, "CPF")
}

func TestCancellationFlow(t *testing.T) {
	store, slots, booker := testFixtures()
	patientID := uuid.New()
	store.patients["12345678901"] = &clinic.Patient{ID: patientID, NationalID: "12345678901", Name: "João Pereira"}

	first := clinic.AppointmentDetail{
		Appointment: clinic.Appointment{ID: uuid.New(), PatientID: patientID,
			Date: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), Start: clinic.MustTimeOfDay("09:00")},
		ProviderName: "Dra. Helena Costa", SpecialtyName: "Cardiologia", LocationName: "Unidade Centro",
	}
	second := clinic.AppointmentDetail{
		Appointment: clinic.Appointment{ID: uuid.New(), PatientID: patientID,
			Date: time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), Start: clinic.MustTimeOfDay("15:00")},
		ProviderName: "Dr. Paulo Nunes", SpecialtyName: "Dermatologia", LocationName: "Unidade Moema",
	}
	booker.cancellable = []clinic.AppointmentDetail{first, second}

	engine := newTestEngine(store, slots, booker)
	conv := newConversation(StateInitial, &Bag{})
	ctx := context.Background()

	reply := engine.Handle(ctx, conv, "quero cancelar uma consulta")
	require.Equal(t, string(StateCancellation), conv.State)

	reply = engine.Handle(ctx, conv, "123.456.789-01")
	require.Equal(t, string(StateCancellation), conv.State)
	require.Len(t, reply.Appointments, 2)

	reply = engine.Handle(ctx, conv, "2")
	require.Equal(t, string(StateFinished), conv.State)
	assert.Equal(t, KindSuccess, reply.Kind)
	require.Len(t, booker.cancelled, 1)
	assert.Equal(t, second.ID, booker.cancelled[0])
}

func TestCancellationWithNothingScheduled(t *testing.T) {
	store, slots, booker := testFixtures()
	store.patients["12345678901"] = &clinic.Patient{ID: uuid.New(), NationalID: "12345678901", Name: "João Pereira"}

	engine := newTestEngine(store, slots, booker)
	conv := newConversation(StateCancellation, &Bag{})

	reply := engine.Handle(context.Background(), conv, "12345678901")
	assert.Equal(t, string(StateFinished), conv.State)
	assert.Contains(t, reply.Message, "não tem consultas")
}

func confirmationConversation(store *stubStore, slots *stubSlots) *clinic.Conversation {
	patientID := uuid.New()
	locID := store.locations[0].ID
	specID := store.specialties[0].ID
	chosen := slots.slots[0]
	return newConversation(StateConfirmation, &Bag{
		NationalID:    "12345678901",
		PatientID:     &patientID,
		LocationID:    &locID,
		LocationName:  "Unidade Centro",
		SpecialtyID:   &specID,
		SpecialtyName: "Cardiologia",
		Offered:       slots.slots,
		Chosen:        &chosen,
	})
}

func TestSlotTakenReoffersFreshSlots(t *testing.T) {
	store, slots, booker := testFixtures()
	booker.bookErr = booking.ErrSlotTaken
	engine := newTestEngine(store, slots, booker)
	conv := confirmationConversation(store, slots)

	reply := engine.Handle(context.Background(), conv, "sim")
	assert.Equal(t, string(StateTimeSlot), conv.State)
	assert.False(t, reply.Success)
	assert.Equal(t, KindSlots, reply.Kind)
	require.Len(t, reply.Slots, 2)
}

func TestDuplicateSpecialtyBlocksBooking(t *testing.T) {
	store, slots, booker := testFixtures()
	booker.bookErr = booking.ErrDuplicateSpecialty
	engine := newTestEngine(store, slots, booker)
	conv := confirmationConversation(store, slots)

	reply := engine.Handle(context.Background(), conv, "sim")
	assert.Equal(t, string(StateInitial), conv.State)
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "Cardiologia")
}

func TestPersistenceFailureKeepsConfirmationPending(t *testing.T) {
	store, slots, booker := testFixtures()
	booker.bookErr = errors.New("connection refused")
	engine := newTestEngine(store, slots, booker)
	conv := confirmationConversation(store, slots)

	reply := engine.Handle(context.Background(), conv, "sim")
	assert.Equal(t, string(StateConfirmation), conv.State, "a retryable failure must not advance the flow")
	assert.False(t, reply.Success)

	booker.bookErr = nil
	reply = engine.Handle(context.Background(), conv, "sim")
	assert.Equal(t, string(StateFinished), conv.State)
	assert.True(t, reply.Success)
}

func TestDecliningConfirmationReoffers(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	conv := confirmationConversation(store, slots)

	reply := engine.Handle(context.Background(), conv, "não")
	assert.Equal(t, string(StateTimeSlot), conv.State)
	assert.Equal(t, KindSlots, reply.Kind)
	assert.Empty(t, booker.booked)
}

func TestCorruptBagResets(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	conv := &clinic.Conversation{SessionID: "sess-1", State: string(StateTimeSlot), Data: json.RawMessage(`{"offered":`)}

	reply := engine.Handle(context.Background(), conv, "1")
	assert.Equal(t, string(StateInitial), conv.State)
	assert.Equal(t, KindError, reply.Kind)
	assert.False(t, reply.Success)
}

func TestUnknownStateResets(t *testing.T) {
	store, slots, booker := testFixtures()
	engine := newTestEngine(store, slots, booker)
	conv := &clinic.Conversation{SessionID: "sess-1", State: "limbo", Data: encodeBag(&Bag{})}

	reply := engine.Handle(context.Background(), conv, "oi")
	assert.Equal(t, string(StateAwaitingID), conv.State)
	assert.True(t, reply.Success)
}

func TestClinicInfoReply(t *testing.T) {
	store, slots, booker := testFixtures()
	store.config["clinic_name"] = "Clínica Vida Plena"
	store.config["clinic_phone"] = "(11) 4000-1234"
	engine := newTestEngine(store, slots, booker)
	conv := newConversation(StateInitial, &Bag{})

	reply := engine.Handle(context.Background(), conv, "qual o endereço e horário de funcionamento?")
	assert.Equal(t, string(StateInitial), conv.State)
	assert.Equal(t, KindInfo, reply.Kind)
	assert.Contains(t, reply.Message, "Clínica Vida Plena")
	assert.Contains(t, reply.Message, "Unidade Centro")
}

func TestLookupFlow(t *testing.T) {
	store, slots, booker := testFixtures()
	patientID := uuid.New()
	store.patients["12345678901"] = &clinic.Patient{ID: patientID, NationalID: "12345678901", Name: "Ana Lima"}
	store.upcoming = []clinic.AppointmentDetail{{
		Appointment: clinic.Appointment{ID: uuid.New(), PatientID: patientID,
			Date: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), Start: clinic.MustTimeOfDay("09:00")},
		ProviderName: "Dra. Helena Costa", SpecialtyName: "Cardiologia", LocationName: "Unidade Centro",
	}}

	engine := newTestEngine(store, slots, booker)
	conv := newConversation(StateInitial, &Bag{})
	ctx := context.Background()

	reply := engine.Handle(ctx, conv, "quais são meus agendamentos?")
	require.Equal(t, string(StateLookup), conv.State)

	reply = engine.Handle(ctx, conv, "123.456.789-01")
	assert.Equal(t, string(StateFinished), conv.State)
	require.Len(t, reply.Appointments, 1)
	assert.Contains(t, reply.Message, "Ana")
}
