package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
)

// Slot is one concrete bookable (provider, date, time) candidate.
type Slot struct {
	ProviderID   uuid.UUID        `json:"provider_id"`
	ProviderName string           `json:"provider_name"`
	LocationID   uuid.UUID        `json:"location_id"`
	Date         time.Time        `json:"date"`
	Start        clinic.TimeOfDay `json:"start"`
}

// StartsAt returns the slot's absolute start instant.
func (s Slot) StartsAt() time.Time {
	return s.Start.At(s.Date)
}

// Key identifies the slot for dedupe and for the booking lock.
func (s Slot) Key() string {
	return clinic.SlotKey(s.ProviderID, s.Date, s.Start)
}

// DisplayDate renders "02/01/2006 (Segunda)".
func (s Slot) DisplayDate() string {
	return fmt.Sprintf("%s (%s)", s.Date.Format("02/01/2006"), clinic.WeekdayNames[clinic.ClinicWeekday(s.Date)])
}

// Store is the read surface the resolver needs. *clinic.PgRepository
// satisfies it.
type Store interface {
	ListActiveProvidersBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]clinic.Provider, error)
	ListActiveTemplates(ctx context.Context, providerID, locationID uuid.UUID) ([]clinic.AvailabilityTemplate, error)
	HasScheduledAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, start clinic.TimeOfDay) (bool, error)
	HasRecurringBlock(ctx context.Context, providerID uuid.UUID, weekday int, start clinic.TimeOfDay, date time.Time) (bool, error)
}

// Resolver expands weekly availability templates into concrete open slots.
// It is a pure read: no call here mutates anything.
type Resolver struct {
	store       Store
	horizonDays int
	leadTime    time.Duration
	cap         int
	now         func() time.Time
}

func NewResolver(store Store, horizonDays int, leadTime time.Duration, cap int) *Resolver {
	return &Resolver{
		store:       store,
		horizonDays: horizonDays,
		leadTime:    leadTime,
		cap:         cap,
		now:         time.Now,
	}
}

// Available returns up to the configured cap of open slots for a specialty at
// a location, sorted by (date, time). A slot is open when no scheduled
// appointment occupies it, no recurring hold covers its date, and its start
// is at least the lead time away from now.
func (r *Resolver) Available(ctx context.Context, locationID, specialtyID uuid.UUID) ([]Slot, error) {
	providers, err := r.store.ListActiveProvidersBySpecialty(ctx, specialtyID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	now := r.now()
	today := clinic.DateOnly(now)
	earliest := now.Add(r.leadTime)

	seen := make(map[string]struct{})
	var slots []Slot

	for _, provider := range providers {
		templates, err := r.store.ListActiveTemplates(ctx, provider.ID, locationID)
		if err != nil {
			return nil, fmt.Errorf("list templates for %s: %w", provider.ID, err)
		}
		if len(templates) == 0 {
			continue
		}

		perProvider := 0
		for day := 0; day <= r.horizonDays && perProvider < r.cap; day++ {
			date := today.AddDate(0, 0, day)
			weekday := clinic.ClinicWeekday(date)

			for _, tpl := range templates {
				if tpl.Weekday != weekday || tpl.SlotMinutes <= 0 {
					continue
				}

				for start := tpl.Start; start.AddMinutes(tpl.SlotMinutes) <= tpl.End; start = start.AddMinutes(tpl.SlotMinutes) {
					if start.At(date).Before(earliest) {
						continue
					}

					// Overlapping templates for the same weekday must not
					// produce the same slot twice.
					slot := Slot{
						ProviderID:   provider.ID,
						ProviderName: provider.Name,
						LocationID:   locationID,
						Date:         date,
						Start:        start,
					}
					if _, dup := seen[slot.Key()]; dup {
						continue
					}

					booked, err := r.store.HasScheduledAppointment(ctx, provider.ID, date, start)
					if err != nil {
						return nil, fmt.Errorf("check booked slot: %w", err)
					}
					if booked {
						continue
					}

					blocked, err := r.store.HasRecurringBlock(ctx, provider.ID, weekday, start, date)
					if err != nil {
						return nil, fmt.Errorf("check recurring hold: %w", err)
					}
					if blocked {
						continue
					}

					seen[slot.Key()] = struct{}{}
					slots = append(slots, slot)
					perProvider++
					if perProvider >= r.cap {
						break
					}
				}
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].ProviderID.String() < slots[j].ProviderID.String()
	})

	if len(slots) > r.cap {
		slots = slots[:r.cap]
	}

	return slots, nil
}

// StillOpen re-checks one slot at confirmation time.
func (r *Resolver) StillOpen(ctx context.Context, slot Slot) (bool, error) {
	booked, err := r.store.HasScheduledAppointment(ctx, slot.ProviderID, slot.Date, slot.Start)
	if err != nil {
		return false, err
	}
	if booked {
		return false, nil
	}

	blocked, err := r.store.HasRecurringBlock(ctx, slot.ProviderID, clinic.ClinicWeekday(slot.Date), slot.Start, slot.Date)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}
