package clinic

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

type PaymentType string

const (
	PaymentInsurance PaymentType = "insurance"
	PaymentSelfPay   PaymentType = "self_pay"
)

type Patient struct {
	ID            uuid.UUID
	NationalID    string // 11-digit CPF, unique
	Name          string
	BirthDate     *time.Time
	Phone         string
	Email         *string
	InsuranceCard *string
	PaymentType   PaymentType
	CreatedAt     time.Time
}

type Location struct {
	ID      uuid.UUID
	Name    string
	Address string
	City    string
	Phone   string
	Active  bool
}

type Specialty struct {
	ID          uuid.UUID
	Name        string
	Description string
	Active      bool
}

type Provider struct {
	ID                uuid.UUID
	Name              string
	LicenseNumber     string
	SpecialtyID       uuid.UUID
	Active            bool
	RecurringSchedule bool // flagged providers hold the booked weekday/time for several weeks
}

// AvailabilityTemplate is a provider's recurring weekly open window at one
// location. Weekday runs 0=Monday through 6=Sunday (not time.Weekday order),
// matching how the clinic configures its agenda.
type AvailabilityTemplate struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	LocationID  uuid.UUID
	Weekday     int
	Start       TimeOfDay
	End         TimeOfDay
	SlotMinutes int
	Active      bool
}

type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	ProviderID   uuid.UUID
	SpecialtyID  uuid.UUID
	LocationID   uuid.UUID
	Date         time.Time // calendar date, midnight UTC
	Start        TimeOfDay
	Status       AppointmentStatus
	Notes        string
	CreatedAt    time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

// AppointmentDetail hydrates an appointment with the names the chatbot
// shows to the patient.
type AppointmentDetail struct {
	Appointment
	PatientName   string
	ProviderName  string
	SpecialtyName string
	LocationName  string
}

// RecurringAppointment is a provider-side weekly hold: the same weekday and
// time are blocked every week from StartDate until EndDate (nil = open ended).
type RecurringAppointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	SpecialtyID uuid.UUID
	LocationID  uuid.UUID
	Weekday     int
	Start       TimeOfDay
	StartDate   time.Time
	EndDate     *time.Time
	Active      bool
	Notes       string
	CreatedAt   time.Time
}

// Conversation holds one chat session's dialogue position. Data is the
// serialized state bag; the chatbot package owns its shape.
type Conversation struct {
	ID        uuid.UUID
	SessionID string
	PatientID *uuid.UUID
	State     string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigEntry is one row of the key/value clinic configuration table.
type ConfigEntry struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
}

// Weekday names shown to patients, indexed 0=Monday through 6=Sunday.
var WeekdayNames = [7]string{"Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado", "Domingo"}

// ClinicWeekday converts a time.Time into the 0=Monday weekday numbering
// used by availability templates and recurring holds.
func ClinicWeekday(t time.Time) int {
	wd := int(t.Weekday()) // 0=Sunday
	return (wd + 6) % 7
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
