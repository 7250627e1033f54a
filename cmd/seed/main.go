package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/booking-api/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctorIDs, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := float64(gofakeit.Number(30, 250))

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, consultation_fee, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, now(), now())
		`, id, name, spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		name := gofakeit.Name()
		email := gofakeit.Email()
		phone := gofakeit.Phone()

		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, uuid.New(), name, email, phone)
		if err != nil {
			return err
		}
	}

	return nil
}

// seedSlots publishes a half-hour slot grid (09:00-17:00) for each doctor
// over the next `days` days, alternating video and in-person.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d doctors over %d days", len(doctorIDs), days)

	modes := []string{"video", "in_person"}

	for _, doctorID := range doctorIDs {
		for d := 1; d <= days; d++ {
			date := time.Now().AddDate(0, 0, d).Format("2006-01-02")
			for hour := 9; hour < 17; hour++ {
				for _, half := range []int{0, 30} {
					start := time.Date(0, 1, 1, hour, half, 0, 0, time.UTC)
					end := start.Add(30 * time.Minute)
					mode := modes[gofakeit.Number(0, 1)]

					_, err := pool.Exec(ctx, `
						INSERT INTO time_slots (id, doctor_id, slot_date, start_time, end_time, mode, status, created_at, updated_at)
						VALUES ($1, $2, $3, $4, $5, $6, 'available', now(), now())
						ON CONFLICT DO NOTHING
					`, uuid.New(), doctorID, date, start.Format("15:04"), end.Format("15:04"), mode)
					if err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}
