package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository implements both Repository and SlotLedger on Postgres. The
// ledger lives in the booked_slots table whose primary key is the
// (doctor_id, date_key, time_label) triple, so a conditional insert is the
// atomic reserve.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.Degree,
		&d.Image,
		&d.Fee,
		&d.IsAvailable,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.BookedSlots = make(BookedSlots)
	return &d, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var doctorSnap, userSnap []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DoctorID,
		&a.Date,
		&a.Time,
		&a.Fee,
		&a.Cancelled,
		&a.Paid,
		&doctorSnap,
		&userSnap,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(doctorSnap, &a.Doctor); err != nil {
		return nil, fmt.Errorf("decode doctor snapshot: %w", err)
	}
	if err := json.Unmarshal(userSnap, &a.User); err != nil {
		return nil, fmt.Errorf("decode user snapshot: %w", err)
	}

	return &a, nil
}

const appointmentColumns = `id, user_id, doctor_id, date_key, time_label, fee, cancelled, paid, doctor_snapshot, user_snapshot, created_at`

// Repository methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, degree, image, fee, available, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, degree, image, fee, available, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListDoctorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM doctors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	doctorSnap, err := json.Marshal(appt.Doctor)
	if err != nil {
		return nil, fmt.Errorf("encode doctor snapshot: %w", err)
	}
	userSnap, err := json.Marshal(appt.User)
	if err != nil {
		return nil, fmt.Errorf("encode user snapshot: %w", err)
	}

	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, $7, $8, now())
		RETURNING `+appointmentColumns+`
	`, id, appt.UserID, appt.DoctorID, appt.Date, appt.Time, appt.Fee, doctorSnap, userSnap)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkAppointmentCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET cancelled = true
		WHERE id = $1
		  AND cancelled = false
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET paid = true
		WHERE id = $1
		  AND paid = false
		  AND cancelled = false
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ActiveSlotKeysByDoctor(ctx context.Context, doctorID uuid.UUID) ([]SlotKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_key, time_label
		FROM appointments
		WHERE doctor_id = $1
		  AND cancelled = false
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []SlotKey
	for rows.Next() {
		var k SlotKey
		if err := rows.Scan(&k.Date, &k.Time); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var apptID *uuid.UUID
	if ev.AppointmentID != nil {
		apptID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, apptID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// SlotLedger methods

func (r *PgRepository) Reserve(ctx context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO booked_slots (doctor_id, date_key, time_label, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (doctor_id, date_key, time_label) DO NOTHING
	`, doctorID, date, label)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotTaken
	}
	return nil
}

func (r *PgRepository) Release(ctx context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM booked_slots
		WHERE doctor_id = $1
		  AND date_key = $2
		  AND time_label = $3
	`, doctorID, date, label)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (r *PgRepository) BookedForDoctor(ctx context.Context, doctorID uuid.UUID) (BookedSlots, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_key, time_label
		FROM booked_slots
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(BookedSlots)
	for rows.Next() {
		var date DateKey
		var label TimeLabel
		if err := rows.Scan(&date, &label); err != nil {
			return nil, err
		}
		booked.Add(date, label)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return booked, nil
}
