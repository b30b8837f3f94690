package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/clinic-scheduling/internal/db"
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

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedUsers(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	log.Println("seed complete")
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS doctors (
			id          uuid PRIMARY KEY,
			name        text NOT NULL,
			specialty   text NOT NULL DEFAULT '',
			degree      text NOT NULL DEFAULT '',
			image       text NOT NULL DEFAULT '',
			fee         integer NOT NULL DEFAULT 0,
			available   boolean NOT NULL DEFAULT true,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id          uuid PRIMARY KEY,
			name        text NOT NULL,
			email       text NOT NULL DEFAULT '',
			phone       text NOT NULL DEFAULT '',
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id               uuid PRIMARY KEY,
			user_id          uuid NOT NULL REFERENCES users(id),
			doctor_id        uuid NOT NULL REFERENCES doctors(id),
			date_key         text NOT NULL,
			time_label       text NOT NULL,
			fee              integer NOT NULL,
			cancelled        boolean NOT NULL DEFAULT false,
			paid             boolean NOT NULL DEFAULT false,
			doctor_snapshot  jsonb NOT NULL,
			user_snapshot    jsonb NOT NULL,
			created_at       timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS appointments_user_idx ON appointments (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS appointments_doctor_active_idx ON appointments (doctor_id) WHERE cancelled = false`,
		// The primary key is what makes reserve a single conditional insert.
		`CREATE TABLE IF NOT EXISTS booked_slots (
			doctor_id   uuid NOT NULL REFERENCES doctors(id),
			date_key    text NOT NULL,
			time_label  text NOT NULL,
			created_at  timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (doctor_id, date_key, time_label)
		)`,
		`CREATE TABLE IF NOT EXISTS event_logs (
			id              bigserial PRIMARY KEY,
			event_type      text NOT NULL,
			appointment_id  uuid,
			payload         jsonb,
			created_at      timestamptz NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
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
	degrees := []string{"MBBS", "MBBS, MD", "MBBS, MS", "MBBS, DNB"}

	for i := 0; i < count; i++ {
		name := fmt.Sprintf("Dr. %s %s", gofakeit.FirstName(), gofakeit.LastName())
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		degree := degrees[gofakeit.Number(0, len(degrees)-1)]
		fee := gofakeit.Number(30, 150)

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, degree, image, fee, available)
			VALUES ($1, $2, $3, $4, $5, $6, true)
		`, uuid.New(), name, specialty, degree, gofakeit.ImageURL(400, 400), fee)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d users", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, name, email, phone)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	}

	return nil
}
