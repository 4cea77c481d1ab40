package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/observability/metrics"
	"github.com/clinicflow/schedcore/internal/slots"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type slotGenerator interface {
	GenerateAndPersist(ctx context.Context, providerID uuid.UUID, opts slots.GenerateOptions) (int, error)
}

type slotLister interface {
	ListAvailable(ctx context.Context, providerID uuid.UUID, from, to time.Time, appointmentType string) ([]slots.Slot, error)
}

// SlotsHandler exposes slot generation and listing.
type SlotsHandler struct {
	generator slotGenerator
	store     slotLister
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

func NewSlotsHandler(generator slotGenerator, store slotLister, m *metrics.SchedulingMetrics, logger *logging.Logger) *SlotsHandler {
	if generator == nil {
		panic("handlers: slot generator required")
	}
	if store == nil {
		panic("handlers: slot store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotsHandler{generator: generator, store: store, metrics: m, logger: logger}
}

type generateRequest struct {
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	AppointmentType string `json:"appointment_type"`
	IncludeWeekends bool   `json:"include_weekends"`
}

type generateResponse struct {
	SlotsCreated int `json:"slots_created"`
}

// Generate materializes bookable slots for the provider over a date range.
func (h *SlotsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	from, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_date must be YYYY-MM-DD"})
		return
	}
	to, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_date must be YYYY-MM-DD"})
		return
	}
	if to.Before(from) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_date is before start_date"})
		return
	}

	// The generator treats To as the last day of the range, so the
	// end_date is inclusive as-is.
	count, err := h.generator.GenerateAndPersist(r.Context(), providerID, slots.GenerateOptions{
		From:            from,
		To:              to,
		AppointmentType: req.AppointmentType,
		IncludeWeekends: req.IncludeWeekends,
		Now:             time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.metrics.ObserveSlotsGenerated(count)
	h.logger.Info("slots generated", "provider_id", providerID, "count", count)
	writeJSON(w, http.StatusOK, generateResponse{SlotsCreated: count})
}

type slotResponse struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	AppointmentType string    `json:"appointment_type"`
}

// List returns the provider's available slots in a window, optionally
// filtered by appointment type.
func (h *SlotsHandler) List(w http.ResponseWriter, r *http.Request) {
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	from, to, err := rangeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	available, err := h.store.ListAvailable(r.Context(), providerID, from, to, r.URL.Query().Get("appointment_type"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]slotResponse, 0, len(available))
	for _, s := range available {
		out = append(out, slotResponse{
			ID:              s.ID,
			ProviderID:      s.ProviderID,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationMinutes: s.DurationMinutes,
			AppointmentType: s.AppointmentType,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// rangeParams parses the from/to query window, defaulting to the next
// 30 days.
func rangeParams(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 0, 30)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := parseDateOrTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := parseDateOrTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func parseDateOrTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
