package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medibook/booking-api/internal/booking"
	redisclient "github.com/medibook/booking-api/internal/redis"
)

var testSecret = []byte("test-secret")

// stubService lets each test plug in just the methods it exercises.
type stubService struct {
	listSlots             func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.SlotView, error)
	acquireSlotLock       func(ctx context.Context, slotID, patientID uuid.UUID) (bool, error)
	releaseSlotLock       func(ctx context.Context, slotID, patientID uuid.UUID) error
	submitBooking         func(ctx context.Context, patientID uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error)
	cancelAppointment     func(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*booking.Appointment, error)
	rescheduleAppointment func(ctx context.Context, patientID, apptID, newSlotID uuid.UUID) (*booking.Appointment, error)
	confirmAppointment    func(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error)
	completeAppointment   func(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error)
	getAppointment        func(ctx context.Context, patientID, apptID uuid.UUID) (*booking.AppointmentDetail, error)
	listAppointments      func(ctx context.Context, patientID uuid.UUID, filter booking.AppointmentFilter, limit, offset int) ([]booking.AppointmentDetail, error)
}

func (s *stubService) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.SlotView, error) {
	return s.listSlots(ctx, doctorID, date)
}

func (s *stubService) AcquireSlotLock(ctx context.Context, slotID, patientID uuid.UUID) (bool, error) {
	return s.acquireSlotLock(ctx, slotID, patientID)
}

func (s *stubService) ReleaseSlotLock(ctx context.Context, slotID, patientID uuid.UUID) error {
	return s.releaseSlotLock(ctx, slotID, patientID)
}

func (s *stubService) SubmitBooking(ctx context.Context, patientID uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error) {
	return s.submitBooking(ctx, patientID, req)
}

func (s *stubService) CancelAppointment(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*booking.Appointment, error) {
	return s.cancelAppointment(ctx, patientID, apptID, reason)
}

func (s *stubService) RescheduleAppointment(ctx context.Context, patientID, apptID, newSlotID uuid.UUID) (*booking.Appointment, error) {
	return s.rescheduleAppointment(ctx, patientID, apptID, newSlotID)
}

func (s *stubService) ConfirmAppointment(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error) {
	return s.confirmAppointment(ctx, apptID)
}

func (s *stubService) CompleteAppointment(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error) {
	return s.completeAppointment(ctx, apptID)
}

func (s *stubService) GetAppointment(ctx context.Context, patientID, apptID uuid.UUID) (*booking.AppointmentDetail, error) {
	return s.getAppointment(ctx, patientID, apptID)
}

func (s *stubService) ListAppointments(ctx context.Context, patientID uuid.UUID, filter booking.AppointmentFilter, limit, offset int) ([]booking.AppointmentDetail, error) {
	return s.listAppointments(ctx, patientID, filter, limit, offset)
}

func newTestRouter(svc BookingService) http.Handler {
	return NewRouter(RouterConfig{
		Service:   svc,
		JWTSecret: testSecret,
		Logger:    zap.NewNop(),
		Env:       "test",
		Version:   "test",
	})
}

func patientToken(t *testing.T, patientID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PatientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   patientID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLockSlotRequiresAuth(t *testing.T) {
	h := newTestRouter(&stubService{})

	rec := doJSON(t, h, http.MethodPost, "/api/slots/lock", "", LockSlotRequest{SlotID: uuid.NewString()})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLockSlotRejectsBadToken(t *testing.T) {
	h := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/slots/lock", bytes.NewBufferString("{}"))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLockSlotSuccess(t *testing.T) {
	patientID := uuid.New()
	slotID := uuid.New()

	svc := &stubService{
		acquireSlotLock: func(ctx context.Context, gotSlot, gotPatient uuid.UUID) (bool, error) {
			if gotSlot != slotID || gotPatient != patientID {
				t.Errorf("acquire called with slot=%s patient=%s", gotSlot, gotPatient)
			}
			return true, nil
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/slots/lock", patientToken(t, patientID), LockSlotRequest{SlotID: slotID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[LockSlotResponse](t, rec)
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func TestLockSlotContention(t *testing.T) {
	svc := &stubService{
		acquireSlotLock: func(ctx context.Context, slotID, patientID uuid.UUID) (bool, error) {
			return false, nil
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/slots/lock", patientToken(t, uuid.New()), LockSlotRequest{SlotID: uuid.NewString()})
	if rec.Code != http.StatusOK {
		t.Fatalf("contention must be 200, got %d", rec.Code)
	}
	resp := decodeBody[LockSlotResponse](t, rec)
	if resp.Success {
		t.Error("expected success=false on contention")
	}
}

func TestLockSlotOnBookedSlot(t *testing.T) {
	svc := &stubService{
		acquireSlotLock: func(ctx context.Context, slotID, patientID uuid.UUID) (bool, error) {
			return false, booking.ErrSlotNotAvailable
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/slots/lock", patientToken(t, uuid.New()), LockSlotRequest{SlotID: uuid.NewString()})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "slot_not_available" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestLockSlotInvalidSlotID(t *testing.T) {
	h := newTestRouter(&stubService{})

	rec := doJSON(t, h, http.MethodPost, "/api/slots/lock", patientToken(t, uuid.New()), LockSlotRequest{SlotID: "not-a-uuid"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestReleaseSlotNoOp(t *testing.T) {
	svc := &stubService{
		releaseSlotLock: func(ctx context.Context, slotID, patientID uuid.UUID) error {
			return redisclient.ErrNotLockHolder
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/slots/release", patientToken(t, uuid.New()), LockSlotRequest{SlotID: uuid.NewString()})
	if rec.Code != http.StatusOK {
		t.Fatalf("no-op release must be 200, got %d", rec.Code)
	}
	resp := decodeBody[ReleaseSlotResponse](t, rec)
	if resp.Released {
		t.Error("expected released=false")
	}
}

func TestCreateAppointmentSuccess(t *testing.T) {
	patientID := uuid.New()
	slotID := uuid.New()

	svc := &stubService{
		submitBooking: func(ctx context.Context, gotPatient uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error) {
			if gotPatient != patientID {
				t.Errorf("patient = %s, want %s", gotPatient, patientID)
			}
			if req.SlotID != slotID || req.Details.Name != "Jane Roe" || req.Mode != booking.ModeVideo {
				t.Errorf("unexpected request: %+v", req)
			}
			return &booking.Appointment{
				ID:        uuid.New(),
				BookingID: "APT-6F2A9C31",
				PatientID: gotPatient,
				SlotID:    req.SlotID,
				Status:    booking.StatusPending,
			}, nil
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments", patientToken(t, patientID), CreateAppointmentRequest{
		SlotID: slotID.String(),
		PatientDetails: PatientDetailsPayload{
			Name: "Jane Roe", Phone: "5551234567", Age: 34, Gender: "female",
		},
		Symptoms: "persistent cough",
		Mode:     "video",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[AppointmentResponse](t, rec)
	if resp.BookingID != "APT-6F2A9C31" || resp.Status != "pending" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateAppointmentValidationFailure(t *testing.T) {
	svc := &stubService{
		submitBooking: func(ctx context.Context, patientID uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error) {
			return nil, &booking.ValidationError{Fields: map[string]string{
				"details.name": "this field is required",
				"symptoms":     "this field is required",
			}}
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments", patientToken(t, uuid.New()), CreateAppointmentRequest{
		SlotID: uuid.NewString(),
		Mode:   "video",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "validation_failed" {
		t.Errorf("error = %q", resp.Error)
	}
	if resp.Fields["details.name"] == "" || resp.Fields["symptoms"] == "" {
		t.Errorf("fields = %v", resp.Fields)
	}
}

func TestCreateAppointmentLockExpired(t *testing.T) {
	svc := &stubService{
		submitBooking: func(ctx context.Context, patientID uuid.UUID, req booking.BookingRequest) (*booking.Appointment, error) {
			return nil, booking.ErrLockExpired
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments", patientToken(t, uuid.New()), CreateAppointmentRequest{
		SlotID: uuid.NewString(),
		PatientDetails: PatientDetailsPayload{
			Name: "Jane Roe", Phone: "5551234567", Age: 34, Gender: "female",
		},
		Symptoms: "persistent cough",
		Mode:     "video",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "lock_expired" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestListSlotsPublic(t *testing.T) {
	doctorID := uuid.New()
	slotID := uuid.New()

	svc := &stubService{
		listSlots: func(ctx context.Context, gotDoctor uuid.UUID, date time.Time) ([]booking.SlotView, error) {
			if gotDoctor != doctorID {
				t.Errorf("doctor = %s, want %s", gotDoctor, doctorID)
			}
			if date.Format("2006-01-02") != "2025-03-01" {
				t.Errorf("date = %s", date)
			}
			return []booking.SlotView{{
				Slot: booking.Slot{
					ID:        slotID,
					DoctorID:  gotDoctor,
					Date:      date,
					StartTime: "10:00",
					EndTime:   "10:30",
					Mode:      booking.ModeVideo,
					Status:    booking.SlotLocked,
				},
				EffectiveStatus: booking.SlotAvailable,
			}}, nil
		},
	}
	h := newTestRouter(svc)

	// Listing is public, no token needed.
	rec := doJSON(t, h, http.MethodGet, "/api/doctors/"+doctorID.String()+"/slots?date=2025-03-01", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[[]SlotResponse](t, rec)
	if len(resp) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(resp))
	}
	// The effective status wins over the stored one.
	if resp[0].Status != "available" {
		t.Errorf("status = %q, want available", resp[0].Status)
	}
}

func TestListSlotsRequiresDate(t *testing.T) {
	h := newTestRouter(&stubService{})

	rec := doJSON(t, h, http.MethodGet, "/api/doctors/"+uuid.NewString()+"/slots", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListSlotsUnknownDoctor404(t *testing.T) {
	svc := &stubService{
		listSlots: func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]booking.SlotView, error) {
			return nil, booking.ErrDoctorNotFound
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodGet, "/api/doctors/"+uuid.NewString()+"/slots?date=2025-03-01", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelAppointmentForbidden(t *testing.T) {
	svc := &stubService{
		cancelAppointment: func(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*booking.Appointment, error) {
			return nil, booking.ErrNotAppointmentOwner
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments/"+uuid.NewString()+"/cancel",
		patientToken(t, uuid.New()), CancelAppointmentRequest{Reason: "schedule conflict"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCancelAppointmentInsideWindow(t *testing.T) {
	svc := &stubService{
		cancelAppointment: func(ctx context.Context, patientID, apptID uuid.UUID, reason string) (*booking.Appointment, error) {
			return nil, booking.ErrTransitionNotAllowed
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments/"+uuid.NewString()+"/cancel",
		patientToken(t, uuid.New()), CancelAppointmentRequest{Reason: "too late"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decodeBody[ErrorResponse](t, rec)
	if resp.Error != "transition_not_allowed" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRescheduleAppointmentCreated(t *testing.T) {
	newSlotID := uuid.New()

	svc := &stubService{
		rescheduleAppointment: func(ctx context.Context, patientID, apptID, gotSlot uuid.UUID) (*booking.Appointment, error) {
			if gotSlot != newSlotID {
				t.Errorf("new slot = %s, want %s", gotSlot, newSlotID)
			}
			return &booking.Appointment{
				ID:     uuid.New(),
				SlotID: gotSlot,
				Status: booking.StatusPending,
			}, nil
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments/"+uuid.NewString()+"/reschedule",
		patientToken(t, uuid.New()), RescheduleAppointmentRequest{NewSlotID: newSlotID.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	svc := &stubService{
		getAppointment: func(ctx context.Context, patientID, apptID uuid.UUID) (*booking.AppointmentDetail, error) {
			return nil, booking.ErrAppointmentNotFound
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodGet, "/api/appointments/"+uuid.NewString(), patientToken(t, uuid.New()), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListAppointmentsInvalidFilter(t *testing.T) {
	h := newTestRouter(&stubService{})

	rec := doJSON(t, h, http.MethodGet, "/api/appointments?filter=bogus", patientToken(t, uuid.New()), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfirmAppointment(t *testing.T) {
	svc := &stubService{
		confirmAppointment: func(ctx context.Context, apptID uuid.UUID) (*booking.Appointment, error) {
			return &booking.Appointment{ID: apptID, Status: booking.StatusConfirmed}, nil
		},
	}
	h := newTestRouter(svc)

	rec := doJSON(t, h, http.MethodPost, "/api/appointments/"+uuid.NewString()+"/confirm",
		patientToken(t, uuid.New()), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[AppointmentResponse](t, rec)
	if resp.Status != "confirmed" {
		t.Errorf("status = %q", resp.Status)
	}
}
