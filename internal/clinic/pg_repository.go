package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func toPGTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * 60 * 1_000_000, Valid: true}
}

func fromPGTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / (60 * 1_000_000))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birthDate *time.Time
	var email, card *string

	err := row.Scan(
		&p.ID,
		&p.NationalID,
		&p.Name,
		&birthDate,
		&p.Phone,
		&email,
		&card,
		&p.PaymentType,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.BirthDate = birthDate
	p.Email = email
	p.InsuranceCard = card
	return &p, nil
}

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location

	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Address,
		&l.City,
		&l.Phone,
		&l.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}

	return &l, nil
}

func scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSpecialtyNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.LicenseNumber,
		&p.SpecialtyID,
		&p.Active,
		&p.RecurringSchedule,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var start, end pgtype.Time

	err := row.Scan(
		&t.ID,
		&t.ProviderID,
		&t.LocationID,
		&t.Weekday,
		&start,
		&end,
		&t.SlotMinutes,
		&t.Active,
	)
	if err != nil {
		return nil, err
	}

	t.Start = fromPGTime(start)
	t.End = fromPGTime(end)
	return &t, nil
}

const appointmentColumns = `a.id, a.patient_id, a.provider_id, a.specialty_id, a.location_id,
	a.date, a.start_time, a.status, a.notes, a.created_at, a.cancelled_at, a.cancel_reason`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start pgtype.Time
	var cancelledAt *time.Time
	var cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.SpecialtyID,
		&a.LocationID,
		&a.Date,
		&start,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&cancelledAt,
		&cancelReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = fromPGTime(start)
	a.CancelledAt = cancelledAt
	a.CancelReason = cancelReason
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var start pgtype.Time
	var cancelledAt *time.Time
	var cancelReason *string

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.ProviderID,
		&d.SpecialtyID,
		&d.LocationID,
		&d.Date,
		&start,
		&d.Status,
		&d.Notes,
		&d.CreatedAt,
		&cancelledAt,
		&cancelReason,
		&d.PatientName,
		&d.ProviderName,
		&d.SpecialtyName,
		&d.LocationName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.Start = fromPGTime(start)
	d.CancelledAt = cancelledAt
	d.CancelReason = cancelReason
	return &d, nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var patientID *uuid.UUID
	var data []byte

	err := row.Scan(
		&c.ID,
		&c.SessionID,
		&patientID,
		&c.State,
		&data,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	c.PatientID = patientID
	c.Data = json.RawMessage(data)
	return &c, nil
}

// Patients

func (r *PgRepository) GetPatientByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, national_id, name, birth_date, phone, email, insurance_card, payment_type, created_at
		FROM patients
		WHERE national_id = $1
	`, nationalID)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, national_id, name, birth_date, phone, email, insurance_card, payment_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, p.ID, p.NationalID, p.Name, p.BirthDate, p.Phone, p.Email, p.InsuranceCard, p.PaymentType)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePatient
		}
		return fmt.Errorf("insert patient: %w", err)
	}

	return nil
}

// Catalog reads

func (r *PgRepository) ListActiveLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, address, city, phone, active
		FROM locations
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetLocationByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, address, city, phone, active
		FROM locations
		WHERE id = $1
	`, id)
	return scanLocation(row)
}

func (r *PgRepository) ListSpecialtiesWithAvailability(ctx context.Context, locationID uuid.UUID) ([]Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT s.id, s.name, s.description, s.active
		FROM specialties s
		JOIN providers p ON p.specialty_id = s.id
		JOIN availability_templates t ON t.provider_id = p.id
		WHERE t.location_id = $1
		  AND t.active
		  AND p.active
		  AND s.active
		ORDER BY s.name
	`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Specialty
	for rows.Next() {
		s, err := scanSpecialty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetSpecialtyByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, description, active
		FROM specialties
		WHERE id = $1
	`, id)
	return scanSpecialty(row)
}

func (r *PgRepository) ListActiveProvidersBySpecialty(ctx context.Context, specialtyID uuid.UUID) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, license_number, specialty_id, active, recurring_schedule
		FROM providers
		WHERE specialty_id = $1
		  AND active
		ORDER BY name
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, license_number, specialty_id, active, recurring_schedule
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListActiveTemplates(ctx context.Context, providerID, locationID uuid.UUID) ([]AvailabilityTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, location_id, weekday, start_time, end_time, slot_minutes, active
		FROM availability_templates
		WHERE provider_id = $1
		  AND location_id = $2
		  AND active
		ORDER BY weekday, start_time
	`, providerID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

// Occupancy checks

func (r *PgRepository) HasScheduledAppointment(ctx context.Context, providerID uuid.UUID, date time.Time, start TimeOfDay) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1
			  AND date = $2
			  AND start_time = $3
			  AND status = 'scheduled'
		)
	`, providerID, date, toPGTime(start)).Scan(&exists)
	return exists, err
}

func (r *PgRepository) HasRecurringBlock(ctx context.Context, providerID uuid.UUID, weekday int, start TimeOfDay, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recurring_appointments
			WHERE provider_id = $1
			  AND weekday = $2
			  AND start_time = $3
			  AND active
			  AND start_date <= $4
			  AND (end_date IS NULL OR end_date >= $4)
		)
	`, providerID, weekday, toPGTime(start), date).Scan(&exists)
	return exists, err
}

func (r *PgRepository) HasScheduledInSpecialty(ctx context.Context, patientID, specialtyID uuid.UUID, from time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND specialty_id = $2
			  AND status = 'scheduled'
			  AND date >= $3
		)
	`, patientID, specialtyID, from).Scan(&exists)
	return exists, err
}

// Booking writes

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment, rec *RecurringAppointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, specialty_id, location_id, date, start_time, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'scheduled', $8, now())
	`, appt.ID, appt.PatientID, appt.ProviderID, appt.SpecialtyID, appt.LocationID,
		appt.Date, toPGTime(appt.Start), appt.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if rec != nil {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO recurring_appointments (id, patient_id, provider_id, specialty_id, location_id, weekday, start_time, start_date, end_date, active, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, now())
		`, rec.ID, rec.PatientID, rec.ProviderID, rec.SpecialtyID, rec.LocationID,
			rec.Weekday, toPGTime(rec.Start), rec.StartDate, rec.EndDate, rec.Notes)
		if err != nil {
			return fmt.Errorf("insert recurring hold: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}

	appt.Status = StatusScheduled
	return nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments a
		SET status = 'cancelled',
		    cancelled_at = $2,
		    cancel_reason = $3
		WHERE a.id = $1
		  AND a.status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, id, at, reason)
	return scanAppointment(row)
}

// Appointment reads

const appointmentDetailQuery = `
	SELECT ` + appointmentColumns + `,
	       pa.name, pr.name, s.name, l.name
	FROM appointments a
	JOIN patients pa ON pa.id = a.patient_id
	JOIN providers pr ON pr.id = a.provider_id
	JOIN specialties s ON s.id = a.specialty_id
	JOIN locations l ON l.id = a.location_id
`

func (r *PgRepository) queryDetails(ctx context.Context, q string, args ...any) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, appointmentDetailQuery+`
		WHERE a.patient_id = $1
		  AND a.status = 'scheduled'
		  AND a.date >= $2
		ORDER BY a.date, a.start_time
	`, patientID, from)
}

func (r *PgRepository) ListPastForPatient(ctx context.Context, patientID uuid.UUID, before time.Time, limit int) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, appointmentDetailQuery+`
		WHERE a.patient_id = $1
		  AND a.date < $2
		ORDER BY a.date DESC, a.start_time DESC
		LIMIT $3
	`, patientID, before, limit)
}

func (r *PgRepository) ListAppointmentsByIDs(ctx context.Context, ids []uuid.UUID) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, appointmentDetailQuery+`
		WHERE a.id = ANY($1)
		ORDER BY a.date, a.start_time
	`, ids)
}

// Conversations

func (r *PgRepository) GetConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, patient_id, state, data, created_at, updated_at
		FROM conversations
		WHERE session_id = $1
	`, sessionID)
	return scanConversation(row)
}

func (r *PgRepository) CreateConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, session_id, state, data, created_at, updated_at)
		VALUES ($1, $2, 'initial', '{}', now(), now())
		RETURNING id, session_id, patient_id, state, data, created_at, updated_at
	`, uuid.New(), sessionID)
	return scanConversation(row)
}

func (r *PgRepository) SaveConversation(ctx context.Context, c *Conversation) error {
	data := c.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET patient_id = $2,
		    state = $3,
		    data = $4,
		    updated_at = now()
		WHERE id = $1
	`, c.ID, c.PatientID, c.State, []byte(data))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	return nil
}

func (r *PgRepository) DeleteStaleConversations(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM conversations
		WHERE id IN (
			SELECT id FROM conversations
			WHERE updated_at < $1
			  AND state <> 'finished'
			LIMIT $2
		)
	`, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("delete stale conversations: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// Configuration

func (r *PgRepository) GetConfigValue(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx, `
		SELECT value FROM clinic_config WHERE key = $1
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *PgRepository) SetConfigValue(ctx context.Context, key, value, description string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinic_config (key, value, description, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    description = EXCLUDED.description,
		    updated_at = now()
	`, key, value, description)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}
