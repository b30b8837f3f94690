package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/clinic-scheduling/internal/assistant"
	"github.com/medibook/clinic-scheduling/internal/calendarlink"
	"github.com/medibook/clinic-scheduling/internal/schedule"
)

func chatHandler(resolver *assistant.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "message_required", "message is required")
			return
		}

		result := resolver.Resolve(req.Message, time.Now())

		resp := ChatResponse{
			Resolved: result.Outcome == assistant.OutcomeResolved,
			Reply:    result.Reply,
		}

		if result.Outcome == assistant.OutcomeResolved && result.Intent.Action == assistant.ActionBook {
			resp.Candidate = &ChatCandidate{
				Doctor: result.Intent.DoctorName,
				Start:  result.Intent.Start,
				End:    result.Intent.End,
			}

			link, err := calendarlink.Build(
				"Appointment with "+result.Intent.DoctorName,
				`Booked via clinic assistant. User message: "`+req.Message+`"`,
				"Clinic / Online",
				result.Intent.Start,
				result.Intent.End,
			)
			if err != nil {
				// The validity gate should make this unreachable; reply still
				// goes out without the link.
				log.Printf("calendar link build failed: %v", err)
			} else {
				resp.CalendarLink = link
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.ListDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for i := range doctors {
			resp = append(resp, toDoctorResponse(&doctors[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		days, err := svc.AvailableSlots(r.Context(), doctorID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, days)
	}
}

func bookAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), userID, doctorID, schedule.DateKey(req.DateKey), schedule.TimeLabel(req.TimeLabel))
		if err != nil {
			status, code := bookErrorStatus(err)
			writeJSON(w, status, BookAppointmentResponse{
				Success: false,
				Message: userMessage(code, err),
			})
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			Success:     true,
			Message:     "Appointment booked",
			Appointment: toAppointmentResponse(appt),
		})
	}
}

func cancelAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), userID, appointmentID); err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Appointment cancelled"})
	}
}

func markPaidHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.MarkPaid(r.Context(), appointmentID); err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Payment recorded"})
	}
}

func listAppointmentsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appointments, err := svc.ListUserAppointments(r.Context(), userID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appointments))
		for i := range appointments {
			resp = append(resp, *toAppointmentResponse(&appointments[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	status, code := bookErrorStatus(err)
	writeError(w, status, code, err.Error())
}

func bookErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, schedule.ErrDoctorUnavailable):
		return http.StatusNotFound, "doctor_unavailable"
	case errors.Is(err, schedule.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found"
	case errors.Is(err, schedule.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found"
	case errors.Is(err, schedule.ErrNotOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, schedule.ErrInvalidSlot):
		return http.StatusUnprocessableEntity, "invalid_slot"
	case errors.Is(err, schedule.ErrSlotTaken):
		return http.StatusConflict, "slot_taken"
	case errors.Is(err, schedule.ErrSlotBusy):
		return http.StatusConflict, "slot_busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func userMessage(code string, err error) string {
	switch code {
	case "doctor_unavailable", "doctor_not_found":
		return "Doctor not available"
	case "slot_taken":
		return "Slot not available"
	case "slot_busy":
		return "Slot is currently being booked, please retry shortly"
	case "invalid_slot":
		return "Selected slot is invalid or in the past"
	case "user_not_found":
		return "User not found"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
