package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
)

// Directory is the read surface for the clinic catalogue endpoints.
type Directory interface {
	ListActiveLocations(ctx context.Context) ([]clinic.Location, error)
	ListSpecialtiesWithAvailability(ctx context.Context, locationID uuid.UUID) ([]clinic.Specialty, error)
	GetLocationByID(ctx context.Context, id uuid.UUID) (*clinic.Location, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*clinic.Specialty, error)
}

// Availability produces bookable slots. *scheduling.Resolver satisfies it.
type Availability interface {
	Available(ctx context.Context, locationID, specialtyID uuid.UUID) ([]scheduling.Slot, error)
}

func listLocationsHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locs, err := dir.ListActiveLocations(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		resp := make([]LocationResponse, 0, len(locs))
		for _, l := range locs {
			resp = append(resp, LocationResponse{
				ID:      l.ID,
				Name:    l.Name,
				Address: l.Address,
				City:    l.City,
				Phone:   l.Phone,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSpecialtiesHandler(dir Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locationID, err := uuid.Parse(r.URL.Query().Get("location_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}
		specs, err := dir.ListSpecialtiesWithAvailability(r.Context(), locationID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		resp := make([]SpecialtyResponse, 0, len(specs))
		for _, s := range specs {
			resp = append(resp, SpecialtyResponse{ID: s.ID, Name: s.Name, Description: s.Description})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkAvailabilityHandler(dir Directory, avail Availability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}
		specialtyID, err := uuid.Parse(req.SpecialtyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_specialty_id", "specialty_id must be a valid UUID")
			return
		}

		// An unknown id is a caller mistake, not an empty agenda.
		if _, err := dir.GetLocationByID(r.Context(), locationID); err != nil {
			if errors.Is(err, clinic.ErrLocationNotFound) {
				writeError(w, http.StatusNotFound, "location_not_found", "no location with that id")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if _, err := dir.GetSpecialtyByID(r.Context(), specialtyID); err != nil {
			if errors.Is(err, clinic.ErrSpecialtyNotFound) {
				writeError(w, http.StatusNotFound, "specialty_not_found", "no specialty with that id")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		slots, err := avail.Available(r.Context(), locationID, specialtyID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				ProviderID:   s.ProviderID,
				ProviderName: s.ProviderName,
				Date:         s.Date.Format("2006-01-02"),
				Time:         s.Start.String(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
