package scheduling

import "errors"

// Errors returned by the scheduling core. Handlers map them to HTTP status
// codes; the service surfaces them to callers unchanged.
var (
	// ErrNotFound means the doctor availability or appointment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSlot means the requested slot is not offered by the doctor's
	// availability, or the date is in the past.
	ErrInvalidSlot = errors.New("slot is not bookable")

	// ErrSlotConflict means another non-cancelled appointment already holds
	// the slot key. Recoverable: the client can pick another slot.
	ErrSlotConflict = errors.New("slot is already booked")

	// ErrInvalidTransition means the requested status change is not an edge
	// of the lifecycle table (terminal states have no outgoing edges).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrForbidden means the principal's role may not perform the operation,
	// or the appointment belongs to someone else.
	ErrForbidden = errors.New("operation not permitted")

	// ErrUnavailable means storage did not answer within its bounded timeout.
	// Retryable with backoff; callers must re-validate slot freshness.
	ErrUnavailable = errors.New("storage unavailable")
)
