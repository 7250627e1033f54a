package booking

import "errors"

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotNotAvailable means the slot exists but cannot be locked or
	// booked: already booked, cancelled, or held by someone else.
	ErrSlotNotAvailable = errors.New("slot is not available")

	// ErrLockExpired means the caller's reservation lapsed (or was never
	// held) by the time the booking was submitted. The client must restart
	// slot selection.
	ErrLockExpired = errors.New("slot reservation expired")

	// ErrTransitionNotAllowed covers both illegal state-machine moves and
	// cancel/reschedule attempts inside the notice window.
	ErrTransitionNotAllowed = errors.New("transition not allowed")

	// ErrNotAppointmentOwner guards patient actions on appointments that
	// belong to someone else.
	ErrNotAppointmentOwner = errors.New("appointment belongs to a different patient")
)
