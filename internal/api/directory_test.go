package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

type stubDirectory struct {
	locations   map[uuid.UUID]clinic.Location
	specialties map[uuid.UUID]clinic.Specialty
}

func (s *stubDirectory) ListActiveLocations(context.Context) ([]clinic.Location, error) {
	out := make([]clinic.Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l)
	}
	return out, nil
}

func (s *stubDirectory) ListSpecialtiesWithAvailability(context.Context, uuid.UUID) ([]clinic.Specialty, error) {
	out := make([]clinic.Specialty, 0, len(s.specialties))
	for _, sp := range s.specialties {
		out = append(out, sp)
	}
	return out, nil
}

func (s *stubDirectory) GetLocationByID(_ context.Context, id uuid.UUID) (*clinic.Location, error) {
	if l, ok := s.locations[id]; ok {
		return &l, nil
	}
	return nil, clinic.ErrLocationNotFound
}

func (s *stubDirectory) GetSpecialtyByID(_ context.Context, id uuid.UUID) (*clinic.Specialty, error) {
	if sp, ok := s.specialties[id]; ok {
		return &sp, nil
	}
	return nil, clinic.ErrSpecialtyNotFound
}

type stubAvailability struct {
	slots []scheduling.Slot
}

func (s *stubAvailability) Available(context.Context, uuid.UUID, uuid.UUID) ([]scheduling.Slot, error) {
	return s.slots, nil
}

func newTestDirectory() (*stubDirectory, clinic.Location, clinic.Specialty) {
	loc := clinic.Location{ID: uuid.New(), Name: "Unidade Centro", City: "São Paulo", Active: true}
	spec := clinic.Specialty{ID: uuid.New(), Name: "Cardiologia", Active: true}
	dir := &stubDirectory{
		locations:   map[uuid.UUID]clinic.Location{loc.ID: loc},
		specialties: map[uuid.UUID]clinic.Specialty{spec.ID: spec},
	}
	return dir, loc, spec
}

func postAvailability(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/availability/check", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCheckAvailabilityReturnsSlots(t *testing.T) {
	dir, loc, spec := newTestDirectory()
	provider := uuid.New()
	avail := &stubAvailability{slots: []scheduling.Slot{{
		ProviderID:   provider,
		ProviderName: "Dra. Helena Costa",
		LocationID:   loc.ID,
		Date:         time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Start:        clinic.TimeOfDay(9 * 60),
	}}}
	h := checkAvailabilityHandler(dir, avail)

	rec := postAvailability(h, fmt.Sprintf(`{"location_id":%q,"specialty_id":%q}`, loc.ID, spec.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var slots []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	require.Len(t, slots, 1)
	assert.Equal(t, provider, slots[0].ProviderID)
	assert.Equal(t, "2026-09-07", slots[0].Date)
	assert.Equal(t, "09:00", slots[0].Time)
}

func TestCheckAvailabilityRejectsUnknownIDs(t *testing.T) {
	dir, loc, spec := newTestDirectory()
	h := checkAvailabilityHandler(dir, &stubAvailability{})

	rec := postAvailability(h, fmt.Sprintf(`{"location_id":%q,"specialty_id":%q}`, uuid.New(), spec.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postAvailability(h, fmt.Sprintf(`{"location_id":%q,"specialty_id":%q}`, loc.ID, uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postAvailability(h, fmt.Sprintf(`{"location_id":"not-a-uuid","specialty_id":%q}`, spec.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubConfigWriter struct {
	values map[string]string
}

func (s *stubConfigWriter) SetConfigValue(_ context.Context, key, value, _ string) error {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	return nil
}

func TestUpdateConfig(t *testing.T) {
	store := &stubConfigWriter{}
	h := updateConfigHandler(store, logging.New("error"))

	req := httptest.NewRequest(http.MethodPut, "/admin/config",
		bytes.NewBufferString(`{"key":"clinic_name","value":"Clínica Nova","description":"display name"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Clínica Nova", store.values["clinic_name"])
}

func TestUpdateConfigRequiresKey(t *testing.T) {
	store := &stubConfigWriter{}
	h := updateConfigHandler(store, logging.New("error"))

	req := httptest.NewRequest(http.MethodPut, "/admin/config",
		bytes.NewBufferString(`{"key":"  ","value":"x"}`))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.values)
}
