package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medibook/booking-api/internal/config"
	redisclient "github.com/medibook/booking-api/internal/redis"
)

const (
	EventSlotLocked             = "SLOT_LOCKED"
	EventSlotReleased           = "SLOT_RELEASED"
	EventSlotLockReconciled     = "SLOT_LOCK_RECONCILED"
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

type Service struct {
	repo   Repository
	locker redisclient.SlotLocker
	cfg    config.Config
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.SlotLocker, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log.With(zap.String("component", "booking")),
		now:    time.Now,
	}
}

// ListSlots returns the doctor's slots for a day with their effective
// status. A slot stored as `locked` whose Redis lock has silently expired is
// reported as available; the stored status is only advisory.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotView, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	views, err := s.repo.ListSlotsByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	for i := range views {
		if views[i].EffectiveStatus != SlotLocked {
			continue
		}
		live, err := s.locker.IsLocked(ctx, views[i].ID)
		if err != nil {
			return nil, err
		}
		if !live {
			views[i].EffectiveStatus = SlotAvailable
		}
	}

	return views, nil
}

func (s *Service) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return s.repo.GetSlotByID(ctx, slotID)
}

// AcquireSlotLock is step 1 of the booking flow: a time-boxed exclusive hold
// on the slot while the patient fills in details. Contention returns
// (false, nil); the client picks another slot.
func (s *Service) AcquireSlotLock(ctx context.Context, slotID uuid.UUID, patientID uuid.UUID) (bool, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return false, err
	}
	if slot.Status == SlotBooked || slot.Status == SlotCancelled {
		return false, ErrSlotNotAvailable
	}

	// A stored `locked` status with no live lock is acquirable: SetNX is
	// the serialization point, not the advisory column.
	acquired, err := s.locker.Acquire(ctx, slotID, patientID.String())
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	if _, err := s.repo.UpdateSlotStatus(ctx, slotID, []SlotStatus{SlotAvailable, SlotLocked}, SlotLocked); err != nil {
		// The lock itself is held; the advisory column catches up via
		// read-time reconciliation.
		s.log.Warn("failed to mark slot locked", zap.String("slot_id", slotID.String()), zap.Error(err))
	}

	s.logEvent(ctx, EventSlotLocked, nil, &slotID, map[string]any{
		"holder": patientID.String(),
	})

	return true, nil
}

// ReleaseSlotLock abandons a held slot. Releasing a lock the caller does not
// hold is a no-op surfaced as ErrNotLockHolder.
func (s *Service) ReleaseSlotLock(ctx context.Context, slotID uuid.UUID, patientID uuid.UUID) error {
	err := s.locker.Release(ctx, slotID, patientID.String())
	if err != nil {
		if errors.Is(err, redisclient.ErrNotLockHolder) {
			s.log.Info("release of unheld slot lock",
				zap.String("slot_id", slotID.String()),
				zap.String("holder", patientID.String()))
		}
		return err
	}

	if _, err := s.repo.UpdateSlotStatus(ctx, slotID, []SlotStatus{SlotLocked}, SlotAvailable); err != nil {
		s.log.Warn("failed to revert slot status", zap.String("slot_id", slotID.String()), zap.Error(err))
	}

	s.logEvent(ctx, EventSlotReleased, nil, &slotID, map[string]any{
		"holder": patientID.String(),
	})

	return nil
}

// SubmitBooking converts a held lock into a persisted appointment. The
// appointment row and the slot's move to `booked` commit in one transaction;
// lock ownership is re-checked inside that transaction right before commit,
// so a lock that lapsed mid-form-fill (and was possibly reacquired by
// someone else) cannot produce a second booking. On any failure the lock is
// left intact so the caller can retry within the TTL.
func (s *Service) SubmitBooking(ctx context.Context, patientID uuid.UUID, req BookingRequest) (*Appointment, error) {
	if err := ValidateBookingRequest(req); err != nil {
		return nil, err
	}

	holder := patientID.String()

	held, err := s.locker.HeldBy(ctx, req.SlotID, holder)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrLockExpired
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.Status == SlotBooked || slot.Status == SlotCancelled {
		return nil, ErrSlotNotAvailable
	}
	if req.Mode != slot.Mode {
		return nil, &ValidationError{Fields: map[string]string{
			"mode": fmt.Sprintf("slot is offered as %s", slot.Mode),
		}}
	}

	doctor, err := s.repo.GetDoctorByID(ctx, slot.DoctorID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:               uuid.New(),
		BookingID:        newBookingID(),
		PatientID:        patientID,
		DoctorID:         doctor.ID,
		SlotID:           slot.ID,
		AppointmentDate:  slot.Date,
		TimeSlot:         fmt.Sprintf("%s - %s", slot.StartTime, slot.EndTime),
		ConsultationMode: slot.Mode,
		Status:           StatusPending,
		Symptoms:         req.Symptoms,
		ConsultationFee:  doctor.ConsultationFee,
	}

	created, err := s.repo.CreateBooking(ctx, appt, func(txCtx context.Context) error {
		stillHeld, err := s.locker.HeldBy(txCtx, req.SlotID, holder)
		if err != nil {
			return err
		}
		if !stillHeld {
			return ErrLockExpired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Commit done; the lock is converted into the booked slot. A failed
	// delete just leaves the key to expire on its own.
	if err := s.locker.Release(ctx, req.SlotID, holder); err != nil && !errors.Is(err, redisclient.ErrNotLockHolder) {
		s.log.Warn("failed to release lock after booking",
			zap.String("slot_id", req.SlotID.String()), zap.Error(err))
	}

	s.logEvent(ctx, EventAppointmentCreated, &created.ID, &slot.ID, map[string]any{
		"booking_id": created.BookingID,
		"patient_id": holder,
	})

	return created, nil
}

// CancelAppointment moves a pending/confirmed appointment to cancelled and
// frees its slot. Allowed only strictly more than the notice window before
// the slot start, with a non-empty reason.
func (s *Service) CancelAppointment(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*Appointment, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Fields: map[string]string{
			"reason": "this field is required",
		}}
	}

	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotAppointmentOwner
	}
	if err := s.checkModifiable(ctx, appt, "cancel"); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.CancelAppointment(ctx, apptID, reason)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentCancelled, &cancelled.ID, &cancelled.SlotID, map[string]any{
		"reason": reason,
	})

	return cancelled, nil
}

// RescheduleAppointment moves a booking to a new slot. The new slot is
// locked first; the old appointment and slot are released only in the same
// transaction that persists the replacement, so a failure anywhere leaves
// the original booking untouched.
func (s *Service) RescheduleAppointment(ctx context.Context, patientID, apptID, newSlotID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotAppointmentOwner
	}
	if err := s.checkModifiable(ctx, appt, "reschedule"); err != nil {
		return nil, err
	}

	newSlot, err := s.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		return nil, err
	}
	if newSlot.Status == SlotBooked || newSlot.Status == SlotCancelled {
		return nil, ErrSlotNotAvailable
	}

	doctor, err := s.repo.GetDoctorByID(ctx, newSlot.DoctorID)
	if err != nil {
		return nil, err
	}

	holder := patientID.String()

	acquired, err := s.locker.Acquire(ctx, newSlotID, holder)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSlotNotAvailable
	}

	history := append(append([]RescheduleRef(nil), appt.RescheduleHistory...), RescheduleRef{
		SlotID:        appt.SlotID,
		Date:          appt.AppointmentDate.Format("2006-01-02"),
		TimeSlot:      appt.TimeSlot,
		RescheduledAt: s.now().UTC(),
	})

	replacement := &Appointment{
		ID:                uuid.New(),
		BookingID:         newBookingID(),
		PatientID:         patientID,
		DoctorID:          doctor.ID,
		SlotID:            newSlot.ID,
		AppointmentDate:   newSlot.Date,
		TimeSlot:          fmt.Sprintf("%s - %s", newSlot.StartTime, newSlot.EndTime),
		ConsultationMode:  newSlot.Mode,
		Status:            StatusPending,
		Symptoms:          appt.Symptoms,
		ConsultationFee:   doctor.ConsultationFee,
		RescheduleHistory: history,
	}

	created, err := s.repo.RescheduleAppointment(ctx, appt, replacement, func(txCtx context.Context) error {
		stillHeld, err := s.locker.HeldBy(txCtx, newSlotID, holder)
		if err != nil {
			return err
		}
		if !stillHeld {
			return ErrLockExpired
		}
		return nil
	})
	if err != nil {
		// The old booking is untouched; free the new-slot lock so others
		// can take it immediately instead of waiting out the TTL.
		if relErr := s.locker.Release(ctx, newSlotID, holder); relErr != nil && !errors.Is(relErr, redisclient.ErrNotLockHolder) {
			s.log.Warn("failed to release lock after reschedule failure",
				zap.String("slot_id", newSlotID.String()), zap.Error(relErr))
		}
		return nil, err
	}

	if err := s.locker.Release(ctx, newSlotID, holder); err != nil && !errors.Is(err, redisclient.ErrNotLockHolder) {
		s.log.Warn("failed to release lock after reschedule",
			zap.String("slot_id", newSlotID.String()), zap.Error(err))
	}

	s.logEvent(ctx, EventAppointmentRescheduled, &created.ID, &created.SlotID, map[string]any{
		"previous_appointment_id": appt.ID.String(),
		"previous_slot_id":        appt.SlotID.String(),
	})

	return created, nil
}

// ConfirmAppointment is the clinic-side pending -> confirmed transition.
func (s *Service) ConfirmAppointment(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, apptID, "confirm", StatusPending, StatusConfirmed, EventAppointmentConfirmed)
}

// CompleteAppointment is the clinic-side confirmed -> completed transition.
// Completed is terminal and blocks further cancel/reschedule.
func (s *Service) CompleteAppointment(ctx context.Context, apptID uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, apptID, "complete", StatusConfirmed, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) transition(ctx context.Context, apptID uuid.UUID, action string, from, to AppointmentStatus, event string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !ValidTransition(action, appt.Status) {
		return nil, ErrTransitionNotAllowed
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, apptID, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Raced with another transition.
			return nil, ErrTransitionNotAllowed
		}
		return nil, fmt.Errorf("%s appointment: %w", action, err)
	}

	s.logEvent(ctx, event, &updated.ID, &updated.SlotID, map[string]any{})

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, patientID, apptID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if detail.PatientID != patientID {
		return nil, ErrNotAppointmentOwner
	}
	return detail, nil
}

func (s *Service) ListAppointments(ctx context.Context, patientID uuid.UUID, filter AppointmentFilter, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// ReconcileLockedSlots reverts slots stuck in the advisory `locked` status
// whose Redis lock has expired. Correctness never depends on this sweep
// (reads reconcile on their own); it keeps the table and pickers tidy.
func (s *Service) ReconcileLockedSlots(ctx context.Context) error {
	slots, err := s.repo.ListSlotsInStatus(ctx, SlotLocked)
	if err != nil {
		return fmt.Errorf("list locked slots: %w", err)
	}

	for _, slot := range slots {
		live, err := s.locker.IsLocked(ctx, slot.ID)
		if err != nil {
			s.log.Warn("lock probe failed during reconcile",
				zap.String("slot_id", slot.ID.String()), zap.Error(err))
			continue
		}
		if live {
			continue
		}

		changed, err := s.repo.UpdateSlotStatus(ctx, slot.ID, []SlotStatus{SlotLocked}, SlotAvailable)
		if err != nil {
			s.log.Warn("failed to reconcile slot",
				zap.String("slot_id", slot.ID.String()), zap.Error(err))
			continue
		}
		if changed {
			slotID := slot.ID
			s.logEvent(ctx, EventSlotLockReconciled, nil, &slotID, map[string]any{})
		}
	}

	return nil
}

func (s *Service) checkModifiable(ctx context.Context, appt *Appointment, action string) error {
	if !ValidTransition(action, appt.Status) {
		return ErrTransitionNotAllowed
	}

	slot, err := s.repo.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return err
	}
	start, err := slot.StartsAt(time.Local)
	if err != nil {
		return fmt.Errorf("parse slot start: %w", err)
	}
	if !WithinModifyWindow(start, s.now(), s.cfg.CancelWindow) {
		return ErrTransitionNotAllowed
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, eventType string, appointmentID, slotID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log", zap.String("event", eventType), zap.Error(err))
	}
}

func newBookingID() string {
	id := uuid.New()
	return "APT-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
