package availability

import "errors"

var (
	// ErrNotConfigured is returned when a provider's rules are queried
	// before any have been stored. Callers initialize with DefaultRule.
	ErrNotConfigured = errors.New("availability rules not configured")

	// ErrInvalidRule is returned when a rule fails structural validation.
	ErrInvalidRule = errors.New("invalid availability rule")

	// ErrBlockedIntervalNotFound is returned when removing an unknown interval.
	ErrBlockedIntervalNotFound = errors.New("blocked interval not found")
)
