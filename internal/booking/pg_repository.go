package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const slotColumns = `
	id, doctor_id, slot_date,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	mode, status, created_at, updated_at`

const appointmentColumns = `
	id, booking_id, patient_id, doctor_id, slot_id,
	appointment_date, time_slot, consultation_mode, status, symptoms,
	consultation_fee, cancellation_reason,
	COALESCE(reschedule_history, '[]'::jsonb), created_at, updated_at`

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.ConsultationFee,
		&d.IsActive,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Mode,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.BookingID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.AppointmentDate,
		&a.TimeSlot,
		&a.ConsultationMode,
		&a.Status,
		&a.Symptoms,
		&a.ConsultationFee,
		&a.CancellationReason,
		&a.RescheduleHistory,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func statusList(statuses []SlotStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_fee, is_active, created_at, updated_at
		FROM doctors
		WHERE id = $1 AND is_active
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]SlotView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ts.id, ts.doctor_id, ts.slot_date,
		       to_char(ts.start_time, 'HH24:MI'), to_char(ts.end_time, 'HH24:MI'),
		       ts.mode, ts.status, ts.created_at, ts.updated_at,
		       CASE WHEN a.id IS NOT NULL THEN 'booked' ELSE ts.status END
		FROM time_slots ts
		LEFT JOIN appointments a
		       ON a.slot_id = ts.id
		      AND a.status NOT IN ('cancelled', 'rescheduled')
		WHERE ts.doctor_id = $1 AND ts.slot_date = $2
		ORDER BY ts.start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotView
	for rows.Next() {
		var v SlotView
		err := rows.Scan(
			&v.ID,
			&v.DoctorID,
			&v.Date,
			&v.StartTime,
			&v.EndTime,
			&v.Mode,
			&v.Status,
			&v.CreatedAt,
			&v.UpdatedAt,
			&v.EffectiveStatus,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from []SlotStatus, to SlotStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
	`, id, to, statusList(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ListSlotsInStatus(ctx context.Context, status SlotStatus) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE status = $1
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT a.id, a.booking_id, a.patient_id, a.doctor_id, a.slot_id,
		       a.appointment_date, a.time_slot, a.consultation_mode, a.status, a.symptoms,
		       a.consultation_fee, a.cancellation_reason,
		       COALESCE(a.reschedule_history, '[]'::jsonb), a.created_at, a.updated_at,
		       d.name, d.specialty
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.id = $1
	`, id)

	var det AppointmentDetail
	err := row.Scan(
		&det.ID,
		&det.BookingID,
		&det.PatientID,
		&det.DoctorID,
		&det.SlotID,
		&det.AppointmentDate,
		&det.TimeSlot,
		&det.ConsultationMode,
		&det.Status,
		&det.Symptoms,
		&det.ConsultationFee,
		&det.CancellationReason,
		&det.RescheduleHistory,
		&det.CreatedAt,
		&det.UpdatedAt,
		&det.DoctorName,
		&det.DoctorSpecialty,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &det, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, filter AppointmentFilter, limit, offset int) ([]AppointmentDetail, error) {
	where := `a.patient_id = $1`
	switch filter {
	case FilterUpcoming:
		where += ` AND a.appointment_date >= CURRENT_DATE AND a.status IN ('pending', 'confirmed')`
	case FilterPast:
		where += ` AND (a.appointment_date < CURRENT_DATE OR a.status IN ('completed', 'cancelled'))`
	}

	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.booking_id, a.patient_id, a.doctor_id, a.slot_id,
		       a.appointment_date, a.time_slot, a.consultation_mode, a.status, a.symptoms,
		       a.consultation_fee, a.cancellation_reason,
		       COALESCE(a.reschedule_history, '[]'::jsonb), a.created_at, a.updated_at,
		       d.name, d.specialty
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		WHERE `+where+`
		ORDER BY a.appointment_date, a.time_slot
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var det AppointmentDetail
		err := rows.Scan(
			&det.ID,
			&det.BookingID,
			&det.PatientID,
			&det.DoctorID,
			&det.SlotID,
			&det.AppointmentDate,
			&det.TimeSlot,
			&det.ConsultationMode,
			&det.Status,
			&det.Symptoms,
			&det.ConsultationFee,
			&det.CancellationReason,
			&det.RescheduleHistory,
			&det.CreatedAt,
			&det.UpdatedAt,
			&det.DoctorName,
			&det.DoctorSpecialty,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, det)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func insertAppointment(ctx context.Context, tx pgx.Tx, appt *Appointment) (*Appointment, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, booking_id, patient_id, doctor_id, slot_id,
			appointment_date, time_slot, consultation_mode, status, symptoms,
			consultation_fee, reschedule_history, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns+`
	`,
		appt.ID, appt.BookingID, appt.PatientID, appt.DoctorID, appt.SlotID,
		appt.AppointmentDate, appt.TimeSlot, appt.ConsultationMode, appt.Status, appt.Symptoms,
		appt.ConsultationFee, appt.RescheduleHistory,
	)
	return scanAppointment(row)
}

func bookSlot(ctx context.Context, tx pgx.Tx, slotID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('available', 'locked')
	`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotAvailable
	}
	return nil
}

func (r *PgRepository) CreateBooking(ctx context.Context, appt *Appointment, preCommit func(context.Context) error) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertAppointment(ctx, tx, appt)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := bookSlot(ctx, tx, appt.SlotID); err != nil {
		return nil, err
	}

	if preCommit != nil {
		if err := preCommit(ctx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, id, reason)

	cancelled, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Either gone or already transitioned under us.
			return nil, ErrTransitionNotAllowed
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'available',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, cancelled.SlotID)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}

	return cancelled, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, old *Appointment, replacement *Appointment, preCommit func(context.Context) error) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := insertAppointment(ctx, tx, replacement)
	if err != nil {
		return nil, fmt.Errorf("insert replacement appointment: %w", err)
	}

	if err := bookSlot(ctx, tx, replacement.SlotID); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
	`, old.ID)
	if err != nil {
		return nil, fmt.Errorf("mark appointment rescheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTransitionNotAllowed
	}

	_, err = tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'available',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, old.SlotID)
	if err != nil {
		return nil, fmt.Errorf("release old slot: %w", err)
	}

	if preCommit != nil {
		if err := preCommit(ctx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
