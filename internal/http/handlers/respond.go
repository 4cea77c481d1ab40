package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/internal/booking"
	"github.com/clinicflow/schedcore/internal/slots"
	"github.com/clinicflow/schedcore/internal/webhooks"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, booking.ErrPolicyViolation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, slots.ErrNotFound),
		errors.Is(err, availability.ErrBlockedIntervalNotFound),
		errors.Is(err, availability.ErrNotConfigured),
		errors.Is(err, webhooks.ErrChannelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, availability.ErrInvalidRule),
		errors.Is(err, slots.ErrUnknownAppointmentType):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
