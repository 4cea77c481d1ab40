package webhooks

import "errors"

var (
	// ErrInvalidSignature means the notification's channel token did not
	// match the shared signing secret.
	ErrInvalidSignature = errors.New("webhooks: invalid signature")

	// ErrMissingHeaders means a required push-notification header was absent.
	ErrMissingHeaders = errors.New("webhooks: missing required headers")

	// ErrChannelNotFound means no channel registration exists for the key.
	ErrChannelNotFound = errors.New("webhooks: channel not found")
)
