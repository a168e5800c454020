package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedConfig(ctx, pool); err != nil {
		log.Fatalf("seed config: %v", err)
	}
	locations, err := seedLocations(ctx, pool)
	if err != nil {
		log.Fatalf("seed locations: %v", err)
	}
	specialties, err := seedSpecialties(ctx, pool)
	if err != nil {
		log.Fatalf("seed specialties: %v", err)
	}
	if err := seedProviders(ctx, pool, locations, specialties); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedPatients(ctx, pool, 200); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedConfig(ctx context.Context, pool *pgxpool.Pool) error {
	entries := [][3]string{
		{"clinic_name", "Clínica Vida Plena", "display name used in chat messages"},
		{"clinic_phone", "(11) 4000-1234", "front desk phone shown to patients"},
		{"opening_hours", "segunda a sexta, das 7h às 19h", "opening hours shown in info replies"},
		{"assistant_name", "Ana", "name the chat assistant introduces itself with"},
		{"block_duplicate_specialties", "false", "when true, one scheduled appointment per specialty per patient"},
		{"recurring_weeks", "4", "weeks a recurring-schedule provider holds the booked slot"},
	}
	for _, e := range entries {
		_, err := pool.Exec(ctx, `
			INSERT INTO clinic_config (key, value, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO NOTHING
		`, e[0], e[1], e[2])
		if err != nil {
			return err
		}
	}
	log.Println("config seeded")
	return nil
}

func seedLocations(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	locations := []struct {
		name, city string
	}{
		{"Unidade Centro", "São Paulo"},
		{"Unidade Moema", "São Paulo"},
		{"Unidade Campinas", "Campinas"},
	}

	ids := make([]uuid.UUID, 0, len(locations))
	for _, l := range locations {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO locations (id, name, address, city, phone, active)
			VALUES ($1, $2, $3, $4, $5, true)
		`, id, l.name, gofakeit.Street(), l.city, gofakeit.Phone())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	log.Printf("%d locations seeded", len(ids))
	return ids, nil
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	specialties := []struct {
		name, description string
	}{
		{"Clínica Geral", "consultas de rotina, check-ups e queixas gerais"},
		{"Cardiologia", "coração, pressão arterial e exames cardiológicos"},
		{"Dermatologia", "pele, cabelos e unhas"},
		{"Ortopedia", "ossos, articulações e coluna"},
		{"Pediatria", "atendimento de crianças e adolescentes"},
		{"Ginecologia", "saúde da mulher e exames preventivos"},
		{"Oftalmologia", "olhos e visão"},
		{"Psiquiatria", "saúde mental"},
	}

	ids := make([]uuid.UUID, 0, len(specialties))
	for _, s := range specialties {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO specialties (id, name, description, active)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (name) DO NOTHING
		`, id, s.name, s.description)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	log.Printf("%d specialties seeded", len(ids))
	return ids, nil
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, locations, specialties []uuid.UUID) error {
	prefixes := []string{"Dr. ", "Dra. "}
	windows := []struct {
		start, end string
	}{
		{"08:00", "12:00"},
		{"13:00", "18:00"},
	}

	total := 0
	for _, specialtyID := range specialties {
		providers := gofakeit.Number(2, 4)
		for i := 0; i < providers; i++ {
			providerID := uuid.New()
			name := prefixes[gofakeit.Number(0, 1)] + gofakeit.Name()
			recurring := gofakeit.Number(1, 10) <= 2

			_, err := pool.Exec(ctx, `
				INSERT INTO providers (id, name, license_number, specialty_id, active, recurring_schedule)
				VALUES ($1, $2, $3, $4, true, $5)
			`, providerID, name, gofakeit.Numerify("CRM-SP ######"), specialtyID, recurring)
			if err != nil {
				return err
			}
			total++

			// Two or three weekly windows, each at one location.
			for _, weekday := range pickWeekdays() {
				win := windows[gofakeit.Number(0, 1)]
				locationID := locations[gofakeit.Number(0, len(locations)-1)]
				_, err := pool.Exec(ctx, `
					INSERT INTO availability_templates (id, provider_id, location_id, weekday, start_time, end_time, slot_minutes, active)
					VALUES ($1, $2, $3, $4, $5, $6, 30, true)
				`, uuid.New(), providerID, locationID, weekday, win.start, win.end)
				if err != nil {
					return err
				}
			}
		}
	}
	log.Printf("%d providers seeded", total)
	return nil
}

// pickWeekdays returns 2 or 3 distinct working days, 0=Monday..4=Friday.
func pickWeekdays() []int {
	days := []int{0, 1, 2, 3, 4}
	gofakeit.ShuffleInts(days)
	return days[:gofakeit.Number(2, 3)]
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	for i := 0; i < count; i++ {
		payment := "self_pay"
		var card *string
		if gofakeit.Bool() {
			payment = "insurance"
			c := gofakeit.Numerify("##########")
			card = &c
		}
		birth := gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
		)

		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, national_id, name, birth_date, phone, email, insurance_card, payment_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (national_id) DO NOTHING
		`, uuid.New(), gofakeit.Numerify("###########"), gofakeit.Name(), birth,
			gofakeit.Numerify("119########"), gofakeit.Email(), card, payment)
		if err != nil {
			return err
		}
	}
	log.Printf("%d patients seeded", count)
	return nil
}
