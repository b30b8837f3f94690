package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// In-memory doubles in the shape of the pg implementations.

type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	users        map[uuid.UUID]*User
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	failCreate   bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]*Doctor),
		users:        make(map[uuid.UUID]*User),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *memRepo) ListDoctors(_ context.Context) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Doctor
	for _, d := range r.doctors {
		out = append(out, *d)
	}
	return out, nil
}

func (r *memRepo) ListDoctorIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id := range r.doctors {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return nil, fmt.Errorf("simulated insert failure")
	}
	copied := *appt
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	copied.CreatedAt = time.Now()
	r.appointments[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memRepo) ListAppointmentsByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) MarkAppointmentCancelled(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Cancelled {
		return false, nil
	}
	a.Cancelled = true
	return true, nil
}

func (r *memRepo) MarkAppointmentPaid(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Paid || a.Cancelled {
		return false, nil
	}
	a.Paid = true
	return true, nil
}

func (r *memRepo) ActiveSlotKeysByDoctor(_ context.Context, doctorID uuid.UUID) ([]SlotKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []SlotKey
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && !a.Cancelled {
			keys = append(keys, SlotKey{Date: a.Date, Time: a.Time})
		}
	}
	return keys, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, ev := range r.events {
		types = append(types, ev.EventType)
	}
	return types
}

type memLedger struct {
	mu     sync.Mutex
	booked map[uuid.UUID]BookedSlots
}

func newMemLedger() *memLedger {
	return &memLedger{booked: make(map[uuid.UUID]BookedSlots)}
}

func (l *memLedger) Reserve(_ context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	slots, ok := l.booked[doctorID]
	if !ok {
		slots = make(BookedSlots)
		l.booked[doctorID] = slots
	}
	if slots.Has(date, label) {
		return ErrSlotTaken
	}
	slots.Add(date, label)
	return nil
}

func (l *memLedger) Release(_ context.Context, doctorID uuid.UUID, date DateKey, label TimeLabel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slots, ok := l.booked[doctorID]; ok {
		slots.Remove(date, label)
	}
	return nil
}

func (l *memLedger) BookedForDoctor(_ context.Context, doctorID uuid.UUID) (BookedSlots, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(BookedSlots)
	for date, set := range l.booked[doctorID] {
		for label := range set {
			out.Add(date, label)
		}
	}
	return out, nil
}

// mutexLocker serializes critical sections per doctor instead of failing
// fast like the Redis locker, so contention tests see conflicts from the
// ledger rather than lock churn.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *mutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

var fixedNow = time.Date(2026, time.September, 3, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memRepo, *memLedger, uuid.UUID, uuid.UUID) {
	t.Helper()

	repo := newMemRepo()
	ledger := newMemLedger()
	svc := NewService(repo, ledger, newMutexLocker(), testWindow()).
		WithClock(func() time.Time { return fixedNow })

	doctorID := uuid.New()
	repo.doctors[doctorID] = &Doctor{
		ID:          doctorID,
		Name:        "Dr. Ava Mitchell",
		Specialty:   "Dermatology",
		Degree:      "MBBS, MD",
		Fee:         60,
		IsAvailable: true,
	}

	userID := uuid.New()
	repo.users[userID] = &User{
		ID:    userID,
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Phone: "+15551234567",
	}

	return svc, repo, ledger, doctorID, userID
}

const (
	slotDate  = DateKey("4_9_2026")
	slotLabel = TimeLabel("10:00 AM")
)

func TestBookCreatesAppointmentWithSnapshots(t *testing.T) {
	svc, repo, ledger, doctorID, userID := newTestService(t)

	appt, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if appt.Fee != 60 {
		t.Errorf("expected fee 60, got %d", appt.Fee)
	}
	if appt.Cancelled || appt.Paid {
		t.Error("new appointment must start uncancelled and unpaid")
	}
	if appt.Doctor.Name != "Dr. Ava Mitchell" || appt.Doctor.Fee != 60 {
		t.Errorf("doctor snapshot not copied: %+v", appt.Doctor)
	}
	if appt.User.Name != "Jane Doe" || appt.User.Email != "jane@example.com" {
		t.Errorf("user snapshot not copied: %+v", appt.User)
	}

	booked, _ := ledger.BookedForDoctor(context.Background(), doctorID)
	if !booked.Has(slotDate, slotLabel) {
		t.Error("slot not reserved in ledger")
	}

	// Later profile edits must not leak into the snapshot.
	repo.doctors[doctorID].Fee = 999
	stored, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Doctor.Fee != 60 {
		t.Errorf("snapshot mutated by profile edit: %d", stored.Doctor.Fee)
	}
}

func TestBookRejectsMissingOrUnavailableDoctor(t *testing.T) {
	svc, repo, _, doctorID, userID := newTestService(t)

	if _, err := svc.Book(context.Background(), userID, uuid.New(), slotDate, slotLabel); !errors.Is(err, ErrDoctorUnavailable) {
		t.Errorf("unknown doctor: expected ErrDoctorUnavailable, got %v", err)
	}

	repo.doctors[doctorID].IsAvailable = false
	if _, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel); !errors.Is(err, ErrDoctorUnavailable) {
		t.Errorf("unavailable doctor: expected ErrDoctorUnavailable, got %v", err)
	}
}

func TestBookRejectsInvalidSlot(t *testing.T) {
	svc, _, _, doctorID, userID := newTestService(t)

	// Earlier today relative to the fixed 09:00 clock.
	if _, err := svc.Book(context.Background(), userID, doctorID, "2_9_2026", "10:00 AM"); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestBookConflictOnTakenSlot(t *testing.T) {
	svc, _, _, doctorID, userID := newTestService(t)

	if _, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)
	if !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookRollsBackReservationOnCreateFailure(t *testing.T) {
	svc, repo, ledger, doctorID, userID := newTestService(t)

	repo.failCreate = true
	if _, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel); err == nil {
		t.Fatal("expected booking to fail")
	}

	booked, _ := ledger.BookedForDoctor(context.Background(), doctorID)
	if booked.Has(slotDate, slotLabel) {
		t.Fatal("reservation survived a failed appointment insert")
	}

	// The slot must be bookable again once the store recovers.
	repo.failCreate = false
	if _, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel); err != nil {
		t.Errorf("rebooking after rollback failed: %v", err)
	}
}

func TestConcurrentBookingSingleWinner(t *testing.T) {
	svc, repo, _, doctorID, _ := newTestService(t)

	const workers = 32
	userIDs := make([]uuid.UUID, workers)
	for i := range userIDs {
		userIDs[i] = uuid.New()
		repo.users[userIDs[i]] = &User{ID: userIDs[i], Name: "User"}
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	var mu sync.Mutex
	var success, taken, other int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			<-start

			_, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSlotTaken):
				taken++
			default:
				other++
			}
		}(userIDs[i])
	}

	close(start)
	wg.Wait()

	if success != 1 {
		t.Errorf("expected exactly 1 success, got %d", success)
	}
	if taken != workers-1 {
		t.Errorf("expected %d ErrSlotTaken, got %d (other errors: %d)", workers-1, taken, other)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, repo, ledger, doctorID, userID := newTestService(t)

	appt, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	if err := svc.Cancel(context.Background(), userID, appt.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if err := svc.Cancel(context.Background(), userID, appt.ID); err != nil {
		t.Fatalf("second cancel must be a no-op success, got %v", err)
	}

	stored, _ := repo.GetAppointmentByID(context.Background(), appt.ID)
	if !stored.Cancelled {
		t.Error("appointment not tombstoned")
	}

	booked, _ := ledger.BookedForDoctor(context.Background(), doctorID)
	if booked.Has(slotDate, slotLabel) {
		t.Error("slot still reserved after cancel")
	}

	// Only one cancellation event despite two calls.
	var cancelEvents int
	for _, typ := range repo.eventTypes() {
		if typ == EventAppointmentCancelled {
			cancelEvents++
		}
	}
	if cancelEvents != 1 {
		t.Errorf("expected 1 cancellation event, got %d", cancelEvents)
	}
}

func TestCancelOwnershipAndExistence(t *testing.T) {
	svc, repo, _, doctorID, userID := newTestService(t)

	if err := svc.Cancel(context.Background(), userID, uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}

	appt, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	stranger := uuid.New()
	repo.users[stranger] = &User{ID: stranger, Name: "Stranger"}
	if err := svc.Cancel(context.Background(), stranger, appt.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}

func TestMarkPaidTransitionsOnce(t *testing.T) {
	svc, repo, _, doctorID, userID := newTestService(t)

	appt, err := svc.Book(context.Background(), userID, doctorID, slotDate, slotLabel)
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	if err := svc.MarkPaid(context.Background(), appt.ID); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if err := svc.MarkPaid(context.Background(), appt.ID); err != nil {
		t.Fatalf("second mark paid must be a no-op success, got %v", err)
	}

	stored, _ := repo.GetAppointmentByID(context.Background(), appt.ID)
	if !stored.Paid {
		t.Error("appointment not marked paid")
	}

	var paidEvents int
	for _, typ := range repo.eventTypes() {
		if typ == EventAppointmentPaid {
			paidEvents++
		}
	}
	if paidEvents != 1 {
		t.Errorf("expected 1 paid event, got %d", paidEvents)
	}

	if err := svc.MarkPaid(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

// The booked set must equal the set derived from non-cancelled appointments
// after any sequence of book/cancel calls.
func TestLedgerMatchesActiveAppointments(t *testing.T) {
	svc, repo, ledger, doctorID, userID := newTestService(t)
	ctx := context.Background()

	a1, err := svc.Book(ctx, userID, doctorID, "4_9_2026", "10:00 AM")
	if err != nil {
		t.Fatalf("book 1: %v", err)
	}
	if _, err := svc.Book(ctx, userID, doctorID, "4_9_2026", "11:30 AM"); err != nil {
		t.Fatalf("book 2: %v", err)
	}
	if _, err := svc.Book(ctx, userID, doctorID, "5_9_2026", "03:00 PM"); err != nil {
		t.Fatalf("book 3: %v", err)
	}
	if err := svc.Cancel(ctx, userID, a1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	assertLedgerConsistent(t, repo, ledger, doctorID)
}

func TestReconcileRestoresConsistency(t *testing.T) {
	svc, repo, ledger, doctorID, userID := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Book(ctx, userID, doctorID, "4_9_2026", "10:00 AM"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(ctx, userID, doctorID, "5_9_2026", "01:00 PM"); err != nil {
		t.Fatalf("book: %v", err)
	}

	// Corrupt the ledger both ways: drop a real reservation, add an orphan.
	if err := ledger.Release(ctx, doctorID, "4_9_2026", "10:00 AM"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ledger.Reserve(ctx, doctorID, "8_9_2026", "04:30 PM"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := svc.ReconcileSlots(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	assertLedgerConsistent(t, repo, ledger, doctorID)
}

func assertLedgerConsistent(t *testing.T, repo *memRepo, ledger *memLedger, doctorID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	want, err := repo.ActiveSlotKeysByDoctor(ctx, doctorID)
	if err != nil {
		t.Fatalf("active slot keys: %v", err)
	}
	have, err := ledger.BookedForDoctor(ctx, doctorID)
	if err != nil {
		t.Fatalf("booked for doctor: %v", err)
	}

	wantSet := make(BookedSlots)
	for _, k := range want {
		wantSet.Add(k.Date, k.Time)
	}

	for _, k := range want {
		if !have.Has(k.Date, k.Time) {
			t.Errorf("ledger missing active slot %s %s", k.Date, k.Time)
		}
	}
	for _, k := range have.Keys() {
		if !wantSet.Has(k.Date, k.Time) {
			t.Errorf("ledger holds orphaned slot %s %s", k.Date, k.Time)
		}
	}
}
