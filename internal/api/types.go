package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/booking-api/internal/booking"
)

type LockSlotRequest struct {
	SlotID string `json:"slot_id"`
}

type LockSlotResponse struct {
	Success bool `json:"success"`
}

type ReleaseSlotResponse struct {
	Released bool `json:"released"`
}

type PatientDetailsPayload struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

type CreateAppointmentRequest struct {
	SlotID         string                `json:"slot_id"`
	PatientDetails PatientDetailsPayload `json:"patient_details"`
	Symptoms       string                `json:"symptoms"`
	Mode           string                `json:"mode"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID               `json:"id"`
	BookingID          string                  `json:"booking_id"`
	PatientID          uuid.UUID               `json:"patient_id"`
	DoctorID           uuid.UUID               `json:"doctor_id"`
	DoctorName         string                  `json:"doctor_name,omitempty"`
	SlotID             uuid.UUID               `json:"slot_id"`
	AppointmentDate    string                  `json:"appointment_date"`
	TimeSlot           string                  `json:"time_slot"`
	ConsultationMode   string                  `json:"consultation_mode"`
	Status             string                  `json:"status"`
	Symptoms           string                  `json:"symptoms"`
	ConsultationFee    float64                 `json:"consultation_fee"`
	CancellationReason *string                 `json:"cancellation_reason,omitempty"`
	RescheduleHistory  []booking.RescheduleRef `json:"reschedule_history,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func slotResponse(v booking.SlotView) SlotResponse {
	return SlotResponse{
		ID:        v.ID,
		DoctorID:  v.DoctorID,
		Date:      v.Date.Format("2006-01-02"),
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		Mode:      string(v.Mode),
		Status:    string(v.EffectiveStatus),
	}
}

func appointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		BookingID:          a.BookingID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		SlotID:             a.SlotID,
		AppointmentDate:    a.AppointmentDate.Format("2006-01-02"),
		TimeSlot:           a.TimeSlot,
		ConsultationMode:   string(a.ConsultationMode),
		Status:             string(a.Status),
		Symptoms:           a.Symptoms,
		ConsultationFee:    a.ConsultationFee,
		CancellationReason: a.CancellationReason,
		RescheduleHistory:  a.RescheduleHistory,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func appointmentDetailResponse(d *booking.AppointmentDetail) AppointmentResponse {
	resp := appointmentResponse(&d.Appointment)
	resp.DoctorName = d.DoctorName
	return resp
}
