package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/db"
)

// Schema for the scheduling bot. Statements are idempotent so the tool
// can run on every deploy.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		id             UUID PRIMARY KEY,
		national_id    VARCHAR(11) NOT NULL UNIQUE,
		name           TEXT NOT NULL,
		birth_date     DATE,
		phone          TEXT NOT NULL DEFAULT '',
		email          TEXT,
		insurance_card TEXT,
		payment_type   TEXT NOT NULL DEFAULT 'self_pay',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS locations (
		id      UUID PRIMARY KEY,
		name    TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		city    TEXT NOT NULL DEFAULT '',
		phone   TEXT NOT NULL DEFAULT '',
		active  BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS specialties (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		active      BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS providers (
		id                 UUID PRIMARY KEY,
		name               TEXT NOT NULL,
		license_number     TEXT NOT NULL DEFAULT '',
		specialty_id       UUID NOT NULL REFERENCES specialties(id),
		active             BOOLEAN NOT NULL DEFAULT true,
		recurring_schedule BOOLEAN NOT NULL DEFAULT false
	)`,

	`CREATE TABLE IF NOT EXISTS availability_templates (
		id           UUID PRIMARY KEY,
		provider_id  UUID NOT NULL REFERENCES providers(id),
		location_id  UUID NOT NULL REFERENCES locations(id),
		weekday      SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_time   TIME NOT NULL,
		end_time     TIME NOT NULL,
		slot_minutes INTEGER NOT NULL DEFAULT 30,
		active       BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id            UUID PRIMARY KEY,
		patient_id    UUID NOT NULL REFERENCES patients(id),
		provider_id   UUID NOT NULL REFERENCES providers(id),
		specialty_id  UUID NOT NULL REFERENCES specialties(id),
		location_id   UUID NOT NULL REFERENCES locations(id),
		date          DATE NOT NULL,
		start_time    TIME NOT NULL,
		status        TEXT NOT NULL DEFAULT 'scheduled',
		notes         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		cancelled_at  TIMESTAMPTZ,
		cancel_reason TEXT
	)`,

	// The authority against double booking: two scheduled appointments
	// can never share a provider, date and start time, no matter what
	// the application layer missed.
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_provider_slot_uniq
		ON appointments (provider_id, date, start_time)
		WHERE status = 'scheduled'`,

	`CREATE INDEX IF NOT EXISTS appointments_patient_idx
		ON appointments (patient_id, date)`,

	`CREATE TABLE IF NOT EXISTS recurring_appointments (
		id           UUID PRIMARY KEY,
		patient_id   UUID NOT NULL REFERENCES patients(id),
		provider_id  UUID NOT NULL REFERENCES providers(id),
		specialty_id UUID NOT NULL REFERENCES specialties(id),
		location_id  UUID NOT NULL REFERENCES locations(id),
		weekday      SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_time   TIME NOT NULL,
		start_date   DATE NOT NULL,
		end_date     DATE,
		active       BOOLEAN NOT NULL DEFAULT true,
		notes        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS recurring_provider_idx
		ON recurring_appointments (provider_id, weekday, start_time)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id         UUID PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		patient_id UUID REFERENCES patients(id),
		state      TEXT NOT NULL DEFAULT 'initial',
		data       JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS conversations_updated_idx
		ON conversations (updated_at)`,

	`CREATE TABLE IF NOT EXISTS clinic_config (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("migrate starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			log.Fatalf("statement %d failed: %v", i+1, err)
		}
	}

	log.Printf("migrate complete, %d statements applied", len(statements))
}
