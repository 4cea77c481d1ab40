package slots

import "errors"

var (
	// ErrNotFound is returned when a slot id does not exist.
	ErrNotFound = errors.New("slot not found")

	// ErrNotAvailable is returned by Claim when the slot is already taken.
	ErrNotAvailable = errors.New("slot not available")

	// ErrUnknownAppointmentType is returned when generating for a type the
	// provider has not configured or has disabled.
	ErrUnknownAppointmentType = errors.New("unknown appointment type")
)
