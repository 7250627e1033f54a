package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentFilter narrows patient appointment listings.
type AppointmentFilter string

const (
	FilterAll      AppointmentFilter = ""
	FilterUpcoming AppointmentFilter = "upcoming"
	FilterPast     AppointmentFilter = "past"
)

// Repository contains all DB interactions needed by the service.
//
// The write paths that pair an appointment row with a slot status change
// (CreateBooking, CancelAppointment, RescheduleAppointment) run in a single
// transaction; preCommit callbacks execute after the writes and before
// commit, so a failed lock re-validation rolls the whole thing back.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// ListSlotsByDoctorDate returns the doctor's slots for a day ordered by
	// start time, with EffectiveStatus already resolved to `booked` where a
	// live appointment references the slot. `locked` reconciliation against
	// the lock store happens in the service.
	ListSlotsByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotView, error)
	// UpdateSlotStatus moves a slot to `to` only if its current status is in
	// `from`; reports whether a row changed.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from []SlotStatus, to SlotStatus) (bool, error)
	// ListSlotsInStatus feeds the reconcile worker.
	ListSlotsInStatus(ctx context.Context, status SlotStatus) ([]Slot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, filter AppointmentFilter, limit, offset int) ([]AppointmentDetail, error)

	// CreateBooking inserts the appointment and marks its slot `booked` in
	// one transaction. preCommit runs last inside the transaction.
	CreateBooking(ctx context.Context, appt *Appointment, preCommit func(context.Context) error) (*Appointment, error)

	// CancelAppointment moves a pending/confirmed appointment to cancelled
	// and frees its slot, in one transaction. A concurrent transition makes
	// the conditional update miss and the call fails without side effects.
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error)

	// RescheduleAppointment creates the replacement appointment on the new
	// slot, marks the old one rescheduled and frees the old slot, in one
	// transaction. preCommit runs last inside the transaction.
	RescheduleAppointment(ctx context.Context, old *Appointment, replacement *Appointment, preCommit func(context.Context) error) (*Appointment, error)

	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
