package booking

import (
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   AppointmentStatus
		valid  bool
	}{
		{"confirm", StatusPending, true},
		{"confirm", StatusConfirmed, false},
		{"confirm", StatusCompleted, false},
		{"complete", StatusConfirmed, true},
		{"complete", StatusPending, false},
		{"complete", StatusCancelled, false},
		{"cancel", StatusPending, true},
		{"cancel", StatusConfirmed, true},
		{"cancel", StatusCompleted, false},
		{"cancel", StatusCancelled, false},
		{"cancel", StatusRescheduled, false},
		{"reschedule", StatusPending, true},
		{"reschedule", StatusConfirmed, true},
		{"reschedule", StatusCompleted, false},
		{"reschedule", StatusCancelled, false},
		{"unknown", StatusPending, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestWithinModifyWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	cases := []struct {
		name  string
		start time.Time
		ok    bool
	}{
		{"24h 1min away", now.Add(24*time.Hour + time.Minute), true},
		{"exactly 24h away", now.Add(24 * time.Hour), false},
		{"23h 59min away", now.Add(23*time.Hour + 59*time.Minute), false},
		{"two days away", now.Add(48 * time.Hour), true},
		{"already started", now.Add(-time.Hour), false},
	}

	for _, tt := range cases {
		if got := WithinModifyWindow(tt.start, now, window); got != tt.ok {
			t.Errorf("%s: WithinModifyWindow=%v, want %v", tt.name, got, tt.ok)
		}
	}
}
