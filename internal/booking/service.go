package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	redisclient "github.com/clinicdesk/clinic-scheduling-bot/internal/redis"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

var (
	ErrSlotTaken          = clinic.ErrSlotTaken
	ErrRecurringBlocked   = errors.New("slot is covered by a recurring hold")
	ErrSlotBeingBooked    = errors.New("slot is currently being booked, please retry")
	ErrDuplicateSpecialty = errors.New("patient already has a scheduled appointment in this specialty")
)

// Configuration keys the booking rules read.
const (
	ConfigBlockDuplicateSpecialties = "block_duplicate_specialties"
	ConfigRecurringWeeks            = "recurring_weeks"
)

// Store contains the DB interactions the booking service needs.
// *clinic.PgRepository satisfies it.
type Store interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*clinic.Provider, error)
	GetConfigValue(ctx context.Context, key, fallback string) (string, error)
	HasScheduledAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, start clinic.TimeOfDay) (bool, error)
	HasRecurringBlock(ctx context.Context, providerID uuid.UUID, weekday int, start clinic.TimeOfDay, date time.Time) (bool, error)
	HasScheduledInSpecialty(ctx context.Context, patientID, specialtyID uuid.UUID, from time.Time) (bool, error)
	CreateAppointment(ctx context.Context, appt *clinic.Appointment, rec *clinic.RecurringAppointment) error
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*clinic.Appointment, error)
	ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]clinic.AppointmentDetail, error)
	ListAppointmentsByIDs(ctx context.Context, ids []uuid.UUID) ([]clinic.AppointmentDetail, error)
}

// Request is a confirmed pick of one displayed slot.
type Request struct {
	PatientID   uuid.UUID
	SpecialtyID uuid.UUID
	Slot        scheduling.Slot
}

// Result reports what was persisted: the appointment and, for providers on a
// fixed weekly agenda, the generated recurring hold.
type Result struct {
	Appointment *clinic.Appointment
	Recurring   *clinic.RecurringAppointment
}

type Service struct {
	store  Store
	locker redisclient.Locker
	log    *logging.Logger
	now    func() time.Time
}

func NewService(store Store, locker redisclient.Locker, log *logging.Logger) *Service {
	return &Service{
		store:  store,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// Book confirms one slot for a patient. The distributed per-slot lock plus
// the in-lock re-check keep two sessions from both persisting the same
// (provider, date, time); the partial unique index in the store is the final
// backstop. Appointment and recurring hold commit in one transaction.
func (s *Service) Book(ctx context.Context, req Request) (*Result, error) {
	provider, err := s.store.GetProviderByID(ctx, req.Slot.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	blockDup, err := s.store.GetConfigValue(ctx, ConfigBlockDuplicateSpecialties, "false")
	if err != nil {
		return nil, fmt.Errorf("read duplicate-specialty toggle: %w", err)
	}
	if blockDup == "true" {
		has, err := s.store.HasScheduledInSpecialty(ctx, req.PatientID, req.SpecialtyID, clinic.DateOnly(s.now()))
		if err != nil {
			return nil, fmt.Errorf("check duplicate specialty: %w", err)
		}
		if has {
			return nil, ErrDuplicateSpecialty
		}
	}

	var result *Result

	err = s.locker.WithSlotLock(ctx, req.Slot.Key(), func(lockCtx context.Context) error {
		booked, err := s.store.HasScheduledAppointment(lockCtx, req.Slot.ProviderID, req.Slot.Date, req.Slot.Start)
		if err != nil {
			return fmt.Errorf("re-check slot: %w", err)
		}
		if booked {
			return ErrSlotTaken
		}

		weekday := clinic.ClinicWeekday(req.Slot.Date)
		blocked, err := s.store.HasRecurringBlock(lockCtx, req.Slot.ProviderID, weekday, req.Slot.Start, req.Slot.Date)
		if err != nil {
			return fmt.Errorf("re-check recurring hold: %w", err)
		}
		if blocked {
			return ErrRecurringBlocked
		}

		appt := &clinic.Appointment{
			ID:          uuid.New(),
			PatientID:   req.PatientID,
			ProviderID:  req.Slot.ProviderID,
			SpecialtyID: req.SpecialtyID,
			LocationID:  req.Slot.LocationID,
			Date:        req.Slot.Date,
			Start:       req.Slot.Start,
			Status:      clinic.StatusScheduled,
		}

		var rec *clinic.RecurringAppointment
		if provider.RecurringSchedule {
			weeks, err := s.recurringWeeks(lockCtx)
			if err != nil {
				return err
			}
			endDate := req.Slot.Date.AddDate(0, 0, 7*weeks)
			rec = &clinic.RecurringAppointment{
				ID:          uuid.New(),
				PatientID:   req.PatientID,
				ProviderID:  req.Slot.ProviderID,
				SpecialtyID: req.SpecialtyID,
				LocationID:  req.Slot.LocationID,
				Weekday:     weekday,
				Start:       req.Slot.Start,
				StartDate:   req.Slot.Date,
				EndDate:     &endDate,
				Active:      true,
				Notes:       fmt.Sprintf("generated from appointment %s", appt.ID),
			}
		}

		if err := s.store.CreateAppointment(lockCtx, appt, rec); err != nil {
			return err
		}

		result = &Result{Appointment: appt, Recurring: rec}
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info("appointment booked",
		"appointment_id", result.Appointment.ID,
		"provider_id", req.Slot.ProviderID,
		"date", req.Slot.Date.Format("2006-01-02"),
		"time", req.Slot.Start.String(),
		"recurring", result.Recurring != nil,
	)

	return result, nil
}

func (s *Service) recurringWeeks(ctx context.Context) (int, error) {
	raw, err := s.store.GetConfigValue(ctx, ConfigRecurringWeeks, "4")
	if err != nil {
		return 0, fmt.Errorf("read recurring weeks: %w", err)
	}
	weeks, err := strconv.Atoi(raw)
	if err != nil || weeks <= 0 {
		s.log.Warn("invalid recurring_weeks config, using 4", "value", raw)
		return 4, nil
	}
	return weeks, nil
}

// Cancel marks one scheduled appointment cancelled. The status guard in the
// store makes it a no-op-with-error when the appointment is not scheduled
// anymore.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*clinic.Appointment, error) {
	appt, err := s.store.CancelAppointment(ctx, id, reason, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment cancelled", "appointment_id", id, "reason", reason)
	return appt, nil
}

// ListCancellable returns the patient's future scheduled appointments.
func (s *Service) ListCancellable(ctx context.Context, patientID uuid.UUID) ([]clinic.AppointmentDetail, error) {
	return s.store.ListUpcomingForPatient(ctx, patientID, clinic.DateOnly(s.now()))
}

// CandidatesByIDs reloads a previously offered cancellation list.
func (s *Service) CandidatesByIDs(ctx context.Context, ids []uuid.UUID) ([]clinic.AppointmentDetail, error) {
	return s.store.ListAppointmentsByIDs(ctx, ids)
}
