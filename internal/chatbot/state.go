package chatbot

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
)

// State is one position in the dialogue.
type State string

const (
	StateInitial      State = "initial"
	StateAwaitingID   State = "awaiting_id"
	StateRegistration State = "registration"
	StateLocation     State = "location"
	StateSpecialty    State = "specialty"
	StateTimeSlot     State = "time_slot"
	StateConfirmation State = "confirmation"
	StateCancellation State = "cancellation"
	StateLookup       State = "lookup_appointments"
	StateFinished     State = "finished"
)

// Registration steps, in order.
const (
	StepName      = "name"
	StepBirthDate = "birth_date"
	StepPhone     = "phone"
	StepEmail     = "email"
	StepPayment   = "payment"
)

// RegistrationData tracks an in-progress patient sign-up.
type RegistrationData struct {
	Step      string  `json:"step"`
	Name      string  `json:"name,omitempty"`
	BirthDate string  `json:"birth_date,omitempty"` // 2006-01-02
	Phone     string  `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// Bag is the per-conversation scratch storage. Each state reads and writes
// only its own fields; the whole struct is serialized into the conversation
// row between turns.
type Bag struct {
	NationalID    string                `json:"national_id,omitempty"`
	PatientID     *uuid.UUID            `json:"patient_id,omitempty"`
	PatientName   string                `json:"patient_name,omitempty"`
	Registration  *RegistrationData     `json:"registration,omitempty"`
	LocationID    *uuid.UUID            `json:"location_id,omitempty"`
	LocationName  string                `json:"location_name,omitempty"`
	SpecialtyID   *uuid.UUID            `json:"specialty_id,omitempty"`
	SpecialtyName string                `json:"specialty_name,omitempty"`
	Offered       []scheduling.Slot     `json:"offered,omitempty"`
	Chosen        *scheduling.Slot      `json:"chosen,omitempty"`
	CancelIDs     []uuid.UUID           `json:"cancel_ids,omitempty"`
}

func decodeBag(raw json.RawMessage) (*Bag, error) {
	if len(raw) == 0 {
		return &Bag{}, nil
	}
	var bag Bag
	if err := json.Unmarshal(raw, &bag); err != nil {
		return nil, fmt.Errorf("decode conversation bag: %w", err)
	}
	return &bag, nil
}

func encodeBag(bag *Bag) json.RawMessage {
	data, err := json.Marshal(bag)
	if err != nil {
		// Bag only holds plain data types; marshalling cannot realistically
		// fail, but a corrupt row is still better than a lost conversation.
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}

// ReplyKind tells the transport layer which payload accompanies the message.
type ReplyKind string

const (
	KindText         ReplyKind = "text"
	KindInfo         ReplyKind = "info"
	KindGuidance     ReplyKind = "guidance"
	KindLocations    ReplyKind = "locations"
	KindSpecialties  ReplyKind = "specialties"
	KindSlots        ReplyKind = "slots"
	KindConfirmation ReplyKind = "confirmation"
	KindAppointments ReplyKind = "appointments"
	KindSuccess      ReplyKind = "success"
	KindError        ReplyKind = "error"
)

type LocationOption struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	City string    `json:"city"`
}

type SpecialtyOption struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type SlotOption struct {
	Ordinal  int    `json:"ordinal"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Provider string `json:"provider"`
}

type AppointmentOption struct {
	Ordinal   int       `json:"ordinal"`
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Provider  string    `json:"provider"`
	Specialty string    `json:"specialty"`
}

// Reply is the state machine's answer to one inbound message.
type Reply struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	Kind          ReplyKind           `json:"kind"`
	NextState     State               `json:"next_state"`
	Locations     []LocationOption    `json:"locations,omitempty"`
	Specialties   []SpecialtyOption   `json:"specialties,omitempty"`
	Slots         []SlotOption        `json:"slots,omitempty"`
	Appointments  []AppointmentOption `json:"appointments,omitempty"`
	AppointmentID *uuid.UUID          `json:"appointment_id,omitempty"`
}

func slotOptions(slots []scheduling.Slot) []SlotOption {
	opts := make([]SlotOption, 0, len(slots))
	for i, s := range slots {
		opts = append(opts, SlotOption{
			Ordinal:  i + 1,
			Date:     s.DisplayDate(),
			Time:     s.Start.String(),
			Provider: s.ProviderName,
		})
	}
	return opts
}

func appointmentOptions(appts []clinic.AppointmentDetail) []AppointmentOption {
	opts := make([]AppointmentOption, 0, len(appts))
	for i, a := range appts {
		opts = append(opts, AppointmentOption{
			Ordinal:   i + 1,
			ID:        a.ID,
			Date:      a.Date.Format("02/01/2006"),
			Time:      a.Start.String(),
			Provider:  a.ProviderName,
			Specialty: a.SpecialtyName,
		})
	}
	return opts
}
