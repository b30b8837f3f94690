package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/clinic-scheduling/internal/schedule"
)

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatCandidate struct {
	Doctor string    `json:"doctor"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type ChatResponse struct {
	Resolved     bool           `json:"resolved"`
	Reply        string         `json:"reply"`
	Candidate    *ChatCandidate `json:"candidate,omitempty"`
	CalendarLink string         `json:"calendar_link,omitempty"`
}

type BookAppointmentRequest struct {
	UserID    string `json:"user_id"`
	DoctorID  string `json:"doctor_id"`
	DateKey   string `json:"date_key"`
	TimeLabel string `json:"time_label"`
}

type CancelAppointmentRequest struct {
	UserID string `json:"user_id"`
}

type AppointmentResponse struct {
	ID        uuid.UUID               `json:"id"`
	UserID    uuid.UUID               `json:"user_id"`
	DoctorID  uuid.UUID               `json:"doctor_id"`
	DateKey   schedule.DateKey        `json:"date_key"`
	TimeLabel schedule.TimeLabel      `json:"time_label"`
	Fee       int                     `json:"fee"`
	Cancelled bool                    `json:"cancelled"`
	Paid      bool                    `json:"paid"`
	Doctor    schedule.DoctorSnapshot `json:"doctor"`
	CreatedAt time.Time               `json:"created_at"`
}

type BookAppointmentResponse struct {
	Success     bool                 `json:"success"`
	Message     string               `json:"message"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DoctorResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Specialty   string    `json:"specialty"`
	Degree      string    `json:"degree"`
	Image       string    `json:"image"`
	Fee         int       `json:"fee"`
	IsAvailable bool      `json:"is_available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *schedule.Appointment) *AppointmentResponse {
	return &AppointmentResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		DoctorID:  a.DoctorID,
		DateKey:   a.Date,
		TimeLabel: a.Time,
		Fee:       a.Fee,
		Cancelled: a.Cancelled,
		Paid:      a.Paid,
		Doctor:    a.Doctor,
		CreatedAt: a.CreatedAt,
	}
}

func toDoctorResponse(d *schedule.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:          d.ID,
		Name:        d.Name,
		Specialty:   d.Specialty,
		Degree:      d.Degree,
		Image:       d.Image,
		Fee:         d.Fee,
		IsAvailable: d.IsAvailable,
	}
}
