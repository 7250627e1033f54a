package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotLocked    SlotStatus = "locked"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
)

type ConsultationMode string

const (
	ModeVideo    ConsultationMode = "video"
	ModeInPerson ConsultationMode = "in_person"
)

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Specialty       *string
	ConsultationFee float64
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is a doctor's bookable time window. Status is authoritative for
// `booked` and `cancelled`; `locked` is advisory and must be reconciled
// against lock existence at read time, since the Redis lock expires on its
// own without a callback.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime string // HH:MM
	EndTime   string // HH:MM
	Mode      ConsultationMode
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt combines the slot date and start time in the given location.
func (s Slot) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(),
		t.Hour(), t.Minute(), 0, 0, loc), nil
}

// SlotView is a slot with its effective status as shown to pickers:
// `booked` if a live appointment references it, `locked` only while a live
// lock exists, otherwise the stored status.
type SlotView struct {
	Slot
	EffectiveStatus SlotStatus
}

// RescheduleRef records the slot an appointment was moved away from.
type RescheduleRef struct {
	SlotID        uuid.UUID `json:"slot_id"`
	Date          string    `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}

type Appointment struct {
	ID                 uuid.UUID
	BookingID          string // human-readable reference, e.g. APT-6F2A9C31
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	SlotID             uuid.UUID
	AppointmentDate    time.Time
	TimeSlot           string // "HH:MM - HH:MM"
	ConsultationMode   ConsultationMode
	Status             AppointmentStatus
	Symptoms           string
	ConsultationFee    float64
	CancellationReason *string
	RescheduleHistory  []RescheduleRef
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppointmentDetail hydrates an appointment with the names shown in lists.
type AppointmentDetail struct {
	Appointment
	DoctorName      string
	DoctorSpecialty *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// PatientDetails is what the booking form collects in step 2 of the flow.
type PatientDetails struct {
	Name   string `validate:"required,min=2,max=120"`
	Phone  string `validate:"required,min=7,max=20"`
	Age    int    `validate:"required,min=1,max=120"`
	Gender string `validate:"required,oneof=male female other"`
}

// BookingRequest is the submit payload for converting a held lock into an
// appointment.
type BookingRequest struct {
	SlotID   uuid.UUID
	Details  PatientDetails   `validate:"required"`
	Symptoms string           `validate:"required,min=1"`
	Mode     ConsultationMode `validate:"required,oneof=video in_person"`
}
