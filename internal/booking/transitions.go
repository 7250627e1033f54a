package booking

import "time"

var transitionMap = map[string][]AppointmentStatus{
	"confirm":    {StatusPending},
	"complete":   {StatusConfirmed},
	"cancel":     {StatusPending, StatusConfirmed},
	"reschedule": {StatusPending, StatusConfirmed},
}

// ValidTransition reports whether action is allowed from the given status.
// completed and cancelled are terminal: no action accepts them.
func ValidTransition(action string, from AppointmentStatus) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// WithinModifyWindow reports whether now is still strictly more than window
// before the slot start. Cancelling or rescheduling inside the window is
// rejected.
func WithinModifyWindow(slotStart, now time.Time, window time.Duration) bool {
	return slotStart.Sub(now) > window
}
