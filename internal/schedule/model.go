package schedule

import (
	"time"

	"github.com/google/uuid"
)

type Doctor struct {
	ID          uuid.UUID
	Name        string
	Specialty   string
	Degree      string
	Image       string
	Fee         int
	IsAvailable bool
	BookedSlots BookedSlots
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DoctorSnapshot records the doctor fields as they were at booking time.
// Later profile edits never touch it.
type DoctorSnapshot struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Degree    string `json:"degree"`
	Image     string `json:"image"`
	Fee       int    `json:"fee"`
}

type UserSnapshot struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Appointment is never physically deleted; Cancelled is a tombstone that
// transitions false->true exactly once, as does Paid.
type Appointment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	DoctorID  uuid.UUID
	Date      DateKey
	Time      TimeLabel
	Fee       int
	Cancelled bool
	Paid      bool
	Doctor    DoctorSnapshot
	User      UserSnapshot
	CreatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Slot is a single open booking unit. Derived, never persisted.
type Slot struct {
	Date  DateKey   `json:"date_key"`
	Time  TimeLabel `json:"time_label"`
	Start time.Time `json:"start"`
}

// DaySlots groups the open slots of one calendar day. Days past the clamp
// may legitimately carry an empty Slots list.
type DaySlots struct {
	Date  DateKey `json:"date_key"`
	Slots []Slot  `json:"slots"`
}
