package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/medibook/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentPaid      = "APPOINTMENT_PAID"
	EventSlotsReconciled      = "SLOTS_RECONCILED"
)

var (
	ErrDoctorUnavailable = errors.New("doctor is not available for booking")
	ErrSlotBusy          = errors.New("slot is currently being booked, please retry")
	ErrNotOwner          = errors.New("appointment belongs to another user")
)

// Service is the booking orchestrator. It owns the slot ledger: slot state
// changes only through Book, Cancel and ReconcileSlots; the slot generator
// only ever reads.
type Service struct {
	repo   Repository
	ledger SlotLedger
	locker redisclient.Locker
	window Window
	now    func() time.Time
}

func NewService(repo Repository, ledger SlotLedger, locker redisclient.Locker, window Window) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		locker: locker,
		window: window,
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Window() Window {
	return s.window
}

// Book reserves the slot and creates the appointment as one logical
// transaction. The per-doctor lock keeps the reserve and the appointment
// insert from being observably separated; the ledger's conditional write is
// what actually guarantees at-most-one booking per triple, so a lost or
// expired lock can cause contention errors but never a double booking.
func (s *Service) Book(ctx context.Context, userID, doctorID uuid.UUID, date DateKey, label TimeLabel) (*Appointment, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, ErrDoctorUnavailable
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.IsAvailable {
		return nil, ErrDoctorUnavailable
	}

	if _, err := s.window.SlotTime(date, label, s.now()); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		if err := s.ledger.Reserve(lockCtx, doctorID, date, label); err != nil {
			return err
		}

		appt := &Appointment{
			UserID:   userID,
			DoctorID: doctorID,
			Date:     date,
			Time:     label,
			Fee:      doctor.Fee,
			Doctor: DoctorSnapshot{
				Name:      doctor.Name,
				Specialty: doctor.Specialty,
				Degree:    doctor.Degree,
				Image:     doctor.Image,
				Fee:       doctor.Fee,
			},
			User: UserSnapshot{
				Name:  user.Name,
				Email: user.Email,
				Phone: user.Phone,
			},
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			// Compensating rollback: the reservation must not outlive a
			// failed appointment insert.
			if relErr := s.ledger.Release(lockCtx, doctorID, date, label); relErr != nil {
				log.Printf("rollback release failed for doctor=%s date=%s time=%s: %v", doctorID, date, label, relErr)
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	s.logEvent(ctx, &created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":  doctorID.String(),
		"user_id":    userID.String(),
		"date_key":   string(date),
		"time_label": string(label),
		"fee":        created.Fee,
	})

	return created, nil
}

// Cancel tombstones an appointment and frees its slot. Idempotent: a second
// cancel of the same appointment is a no-op success, and the underlying
// release is safe to repeat.
func (s *Service) Cancel(ctx context.Context, userID, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	if appt.UserID != userID {
		return ErrNotOwner
	}

	changed, err := s.repo.MarkAppointmentCancelled(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.ledger.Release(ctx, appt.DoctorID, appt.Date, appt.Time); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	if changed {
		s.logEvent(ctx, &appointmentID, EventAppointmentCancelled, map[string]any{
			"doctor_id":  appt.DoctorID.String(),
			"date_key":   string(appt.Date),
			"time_label": string(appt.Time),
		})
	}

	return nil
}

// MarkPaid flips the paid flag after external payment confirmation.
func (s *Service) MarkPaid(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := s.repo.GetAppointmentByID(ctx, appointmentID); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return fmt.Errorf("load appointment: %w", err)
	}

	changed, err := s.repo.MarkAppointmentPaid(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("mark appointment paid: %w", err)
	}

	if changed {
		s.logEvent(ctx, &appointmentID, EventAppointmentPaid, map[string]any{})
	}

	return nil
}

// AvailableSlots returns the doctor's open slots for the rolling window,
// recomputed from the current ledger state on every call.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID) ([]DaySlots, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsAvailable {
		return nil, ErrDoctorUnavailable
	}

	booked, err := s.ledger.BookedForDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	doctor.BookedSlots = booked

	return GenerateSlots(doctor, s.now(), s.window), nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

func (s *Service) ListUserAppointments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by user: %w", err)
	}
	return appointments, nil
}

// ReconcileSlots makes each doctor's booked set equal the set derived from
// its non-cancelled appointments: missing reservations are re-inserted,
// orphaned ones released. Intended to be called by the worker periodically.
func (s *Service) ReconcileSlots(ctx context.Context) error {
	doctorIDs, err := s.repo.ListDoctorIDs(ctx)
	if err != nil {
		return fmt.Errorf("list doctors: %w", err)
	}

	var added, removed int

	for _, doctorID := range doctorIDs {
		err := s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
			want, err := s.repo.ActiveSlotKeysByDoctor(lockCtx, doctorID)
			if err != nil {
				return fmt.Errorf("load active appointment slots: %w", err)
			}

			have, err := s.ledger.BookedForDoctor(lockCtx, doctorID)
			if err != nil {
				return fmt.Errorf("load booked slots: %w", err)
			}

			wantSet := make(BookedSlots)
			for _, k := range want {
				wantSet.Add(k.Date, k.Time)
			}

			for _, k := range want {
				if have.Has(k.Date, k.Time) {
					continue
				}
				if err := s.ledger.Reserve(lockCtx, doctorID, k.Date, k.Time); err != nil && !errors.Is(err, ErrSlotTaken) {
					return fmt.Errorf("restore reservation: %w", err)
				}
				added++
			}

			for _, k := range have.Keys() {
				if wantSet.Has(k.Date, k.Time) {
					continue
				}
				if err := s.ledger.Release(lockCtx, doctorID, k.Date, k.Time); err != nil {
					return fmt.Errorf("release orphaned reservation: %w", err)
				}
				removed++
			}

			return nil
		})
		if err != nil {
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				// A booking is in flight for this doctor; next run catches up.
				continue
			}
			return err
		}
	}

	if added > 0 || removed > 0 {
		log.Printf("reconcile adjusted ledger added=%d removed=%d", added, removed)
		s.logEvent(ctx, nil, EventSlotsReconciled, map[string]any{
			"added":   added,
			"removed": removed,
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s: %v", eventType, err)
	}
}
