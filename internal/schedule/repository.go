package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ListDoctorIDs(ctx context.Context) ([]uuid.UUID, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Tombstone transitions. Both report whether this call flipped the flag,
	// so repeated cancels stay no-ops rather than errors.
	MarkAppointmentCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (bool, error)

	// Reconcile sweep: slots derived from non-cancelled appointments.
	ActiveSlotKeysByDoctor(ctx context.Context, doctorID uuid.UUID) ([]SlotKey, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// ErrSlotTaken is the Conflict outcome of Reserve: the triple was already
// booked when the conditional write ran.
var ErrSlotTaken = errors.New("slot is already booked")

// SlotLedger is the authoritative record of booked slots per doctor. Reserve
// must be atomic with respect to concurrent Reserve/Release calls on the same
// doctor: for one (doctor, date, time) triple, of any number of concurrent
// reservations exactly one succeeds.
type SlotLedger interface {
	Reserve(ctx context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error
	// Release is idempotent; releasing a free slot is a no-op.
	Release(ctx context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error
	BookedForDoctor(ctx context.Context, doctorID uuid.UUID) (BookedSlots, error)
}
