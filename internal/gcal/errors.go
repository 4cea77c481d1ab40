package gcal

import "errors"

var (
	// ErrNoCredentials is returned when a provider never connected a calendar.
	ErrNoCredentials = errors.New("no calendar credentials for provider")

	// ErrCredentialsExpired is returned after a refresh-and-retry cycle
	// still fails authorization.
	ErrCredentialsExpired = errors.New("calendar credentials expired")

	// ErrProviderUnavailable is returned when the calendar API is
	// unreachable or times out. Callers treat it as non-fatal; background
	// reconciliation repairs drift later.
	ErrProviderUnavailable = errors.New("calendar provider unavailable")
)
