package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/booking-api/internal/booking"
	redisclient "github.com/medibook/booking-api/internal/redis"
)

// BookingService is the slice of the booking service the handlers need.
type BookingService interface {
	ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.SlotView, error)
	AcquireSlotLock(ctx context.Context, slotID, patientID uuid.UUID) (bool, error)
	ReleaseSlotLock(ctx context.Context, slotID, patientID uuid.UUID) error
	SubmitBooking(ctx context.Context, patientID uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error)
	CancelAppointment(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*booking.Appointment, error)
	RescheduleAppointment(ctx context.Context, patientID, apptID, newSlotID uuid.UUID) (*booking.Appointment, error)
	ConfirmAppointment(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error)
	CompleteAppointment(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error)
	GetAppointment(ctx context.Context, patientID, apptID uuid.UUID) (*booking.AppointmentDetail, error)
	ListAppointments(ctx context.Context, patientID uuid.UUID, filter booking.AppointmentFilter, limit, offset int) ([]booking.AppointmentDetail, error)
}

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		views, err := svc.ListSlots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(views))
		for _, v := range views {
			resp = append(resp, slotResponse(v))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func lockSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		slotID, ok := decodeSlotID(w, r)
		if !ok {
			return
		}

		acquired, err := svc.AcquireSlotLock(r.Context(), slotID, patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		// Contention is an expected outcome, not an error: 200 with
		// success=false and the client picks another slot.
		writeJSON(w, http.StatusOK, LockSlotResponse{Success: acquired})
	}
}

func releaseSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		slotID, ok := decodeSlotID(w, r)
		if !ok {
			return
		}

		err := svc.ReleaseSlotLock(r.Context(), slotID, patientID)
		if err != nil {
			if errors.Is(err, redisclient.ErrNotLockHolder) {
				// No-op release: the lock expired or was never held.
				writeJSON(w, http.StatusOK, ReleaseSlotResponse{Released: false})
				return
			}
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ReleaseSlotResponse{Released: true})
	}
}

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appt, err := svc.SubmitBooking(r.Context(), patientID, booking.BookingRequest{
			SlotID: slotID,
			Details: booking.PatientDetails{
				Name:   req.PatientDetails.Name,
				Phone:  req.PatientDetails.Phone,
				Age:    req.PatientDetails.Age,
				Gender: req.PatientDetails.Gender,
			},
			Symptoms: req.Symptoms,
			Mode:     booking.ConsultationMode(req.Mode),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		filter := booking.AppointmentFilter(r.URL.Query().Get("filter"))
		switch filter {
		case booking.FilterAll, booking.FilterUpcoming, booking.FilterPast:
		default:
			writeError(w, http.StatusBadRequest, "invalid_filter", "filter must be upcoming or past")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListAppointments(r.Context(), patientID, filter, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentDetailResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), patientID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentDetailResponse(detail))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), patientID, apptID, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing patient identity")
			return
		}

		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newSlotID, err := uuid.Parse(req.NewSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "new_slot_id must be a valid UUID")
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), patientID, apptID, newSlotID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.ConfirmAppointment(r.Context(), apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.CompleteAppointment(r.Context(), apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func decodeSlotID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req LockSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return uuid.Nil, false
	}

	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return uuid.Nil, false
	}
	return slotID, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, err error) {
	var verr *booking.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr.Fields)
	case errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrNotAppointmentOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrLockExpired):
		writeError(w, http.StatusConflict, "lock_expired", "your reservation expired, please reselect a slot")
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, "slot_not_available", "slot no longer available, pick another")
	case errors.Is(err, booking.ErrTransitionNotAllowed):
		writeError(w, http.StatusConflict, "transition_not_allowed", err.Error())
	case errors.Is(err, redisclient.ErrLockStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary failure, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
