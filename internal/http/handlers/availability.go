package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type ruleStore interface {
	EnsureRules(ctx context.Context, providerID uuid.UUID) (*availability.Rule, error)
	UpsertRules(ctx context.Context, rule *availability.Rule) error
	AddBlockedInterval(ctx context.Context, providerID uuid.UUID, interval availability.BlockedInterval) (*availability.BlockedInterval, error)
	RemoveBlockedInterval(ctx context.Context, providerID, intervalID uuid.UUID) error
}

// AvailabilityHandler exposes a provider's scheduling configuration.
type AvailabilityHandler struct {
	rules  ruleStore
	logger *logging.Logger
}

func NewAvailabilityHandler(rules ruleStore, logger *logging.Logger) *AvailabilityHandler {
	if rules == nil {
		panic("handlers: rule store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{rules: rules, logger: logger}
}

type availabilityPayload struct {
	WeeklyTemplate   []availability.TemplateEntry   `json:"weekly_template"`
	AppointmentTypes []availability.AppointmentType `json:"appointment_types"`
	BlockedIntervals []availability.BlockedInterval `json:"blocked_intervals,omitempty"`
	Policy           availability.BookingPolicy     `json:"policy"`
}

// Get returns the provider's rules, creating the defaults on first use.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	rule, err := h.rules.EnsureRules(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to load availability rules", "provider_id", providerID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityPayload{
		WeeklyTemplate:   rule.WeeklyTemplate,
		AppointmentTypes: rule.AppointmentTypes,
		BlockedIntervals: rule.BlockedIntervals,
		Policy:           rule.Policy,
	})
}

// Put replaces the provider's rules.
func (h *AvailabilityHandler) Put(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	var payload availabilityPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	rule := &availability.Rule{
		ProviderID:       providerID,
		WeeklyTemplate:   payload.WeeklyTemplate,
		AppointmentTypes: payload.AppointmentTypes,
		BlockedIntervals: payload.BlockedIntervals,
		Policy:           payload.Policy,
	}
	if err := h.rules.UpsertRules(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("availability rules updated", "provider_id", providerID)
	writeJSON(w, http.StatusOK, payload)
}

// AddBlockedInterval appends one blocked interval to the provider's rules.
func (h *AvailabilityHandler) AddBlockedInterval(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	var interval availability.BlockedInterval
	if err := decodeJSON(r, &interval); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if !interval.EndTime.After(interval.StartTime) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_time must be after start_time"})
		return
	}

	saved, err := h.rules.AddBlockedInterval(r.Context(), providerID, interval)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// RemoveBlockedInterval deletes one blocked interval.
func (h *AvailabilityHandler) RemoveBlockedInterval(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}
	intervalID, err := uuid.Parse(chi.URLParam(r, "intervalID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid interval id"})
		return
	}

	if err := h.rules.RemoveBlockedInterval(r.Context(), providerID, intervalID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func providerIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "providerID"))
}
