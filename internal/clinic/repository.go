package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrLocationNotFound     = errors.New("location not found")
	ErrSpecialtyNotFound    = errors.New("specialty not found")
	ErrProviderNotFound     = errors.New("provider not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDuplicatePatient     = errors.New("patient already registered")
	ErrSlotTaken            = errors.New("slot already has a scheduled appointment")
)

// Repository contains all DB interactions needed by the chatbot, the slot
// resolver and the booking service.
type Repository interface {
	// Patients
	GetPatientByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error

	// Catalog reads
	ListActiveLocations(ctx context.Context) ([]Location, error)
	GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error)
	ListSpecialtiesWithAvailability(ctx context.Context, locationID uuid.UUID) ([]Specialty, error)
	GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
	ListActiveProvidersBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]Provider, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListActiveTemplates(ctx context.Context, providerID, locationID uuid.UUID) ([]AvailabilityTemplate, error)

	// Occupancy checks for the slot resolver and the booking re-check
	HasScheduledAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, start TimeOfDay) (bool, error)
	HasRecurringBlock(ctx context.Context, providerID uuid.UUID, weekday int, start TimeOfDay, date time.Time) (bool, error)
	HasScheduledInSpecialty(ctx context.Context, patientID, specialtyID uuid.UUID, from time.Time) (bool, error)

	// Booking writes. CreateAppointment persists the appointment and, when
	// rec is non-nil, the recurring hold in one transaction; a unique
	// violation on the scheduled slot index surfaces as ErrSlotTaken.
	CreateAppointment(ctx context.Context, appt *Appointment, rec *RecurringAppointment) error
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*Appointment, error)

	// Appointment reads for lookup and cancellation
	ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]AppointmentDetail, error)
	ListPastForPatient(ctx context.Context, patientID uuid.UUID, before time.Time, limit int) ([]AppointmentDetail, error)
	ListAppointmentsByIDs(ctx context.Context, ids []uuid.UUID) ([]AppointmentDetail, error)

	// Conversations
	GetConversationBySession(ctx context.Context, sessionID string) (*Conversation, error)
	CreateConversation(ctx context.Context, sessionID string) (*Conversation, error)
	SaveConversation(ctx context.Context, c *Conversation) error
	DeleteStaleConversations(ctx context.Context, olderThan time.Time, limit int) (int, error)

	// Configuration
	GetConfigValue(ctx context.Context, key, fallback string) (string, error)
	SetConfigValue(ctx context.Context, key, value, description string) error
}

// SlotKey renders the (provider, date, time) triple as the lock key used to
// serialize concurrent bookings of the same slot.
func SlotKey(providerID uuid.UUID, date time.Time, start TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s", providerID, date.Format("2006-01-02"), start)
}
