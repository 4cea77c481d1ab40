package booking

import "errors"

var (
	// ErrNotFound is returned when an appointment id does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable is returned when the requested slot is taken,
	// missing, or starts inside the lead-time window.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrPolicyViolation is returned when an actor breaks a booking policy
	// rule, such as cancelling inside the notice window. User-facing and
	// never retried.
	ErrPolicyViolation = errors.New("booking policy violation")

	// ErrInvalidTransition is returned when an appointment is not in a
	// state that permits the requested operation.
	ErrInvalidTransition = errors.New("invalid appointment state transition")

	// ErrForbidden is returned when the principal's role does not permit
	// the operation.
	ErrForbidden = errors.New("operation not permitted for role")
)
