package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/booking"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type bookingLedger interface {
	Book(ctx context.Context, principal booking.Principal, slotID uuid.UUID, info booking.PatientInfo) (*booking.Appointment, error)
	Cancel(ctx context.Context, principal booking.Principal, appointmentID uuid.UUID, reason string) (*booking.Appointment, error)
	Reschedule(ctx context.Context, principal booking.Principal, appointmentID, newSlotID uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, principal booking.Principal, appointmentID uuid.UUID) (*booking.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (*booking.Appointment, error)
	ClearProvider(ctx context.Context, principal booking.Principal, providerID uuid.UUID) error
}

type appointmentLister interface {
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Appointment, error)
}

type blockedIntervalClearer interface {
	ClearBlockedIntervals(ctx context.Context, providerID uuid.UUID) error
}

// PrincipalResolver pulls the authenticated actor off the request context.
type PrincipalResolver func(ctx context.Context) (booking.Principal, bool)

// AppointmentsHandler exposes the booking lifecycle.
type AppointmentsHandler struct {
	ledger    bookingLedger
	appts     appointmentLister
	blocked   blockedIntervalClearer
	principal PrincipalResolver
	logger    *logging.Logger
}

func NewAppointmentsHandler(ledger bookingLedger, appts appointmentLister, blocked blockedIntervalClearer, principal PrincipalResolver, logger *logging.Logger) *AppointmentsHandler {
	if ledger == nil {
		panic("handlers: ledger required")
	}
	if principal == nil {
		panic("handlers: principal resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{
		ledger:    ledger,
		appts:     appts,
		blocked:   blocked,
		principal: principal,
		logger:    logger,
	}
}

type createAppointmentRequest struct {
	SlotID         uuid.UUID  `json:"slot_id"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	PatientName    string     `json:"patient_name"`
	PatientEmail   string     `json:"patient_email,omitempty"`
	PatientPhone   string     `json:"patient_phone,omitempty"`
	ReasonForVisit string     `json:"reason_for_visit,omitempty"`
}

type appointmentResponse struct {
	ID              uuid.UUID              `json:"id"`
	SlotID          uuid.UUID              `json:"slot_id"`
	ProviderID      uuid.UUID              `json:"provider_id"`
	PatientName     string                 `json:"patient_name"`
	Status          string                 `json:"status"`
	ExternalEventID *string                `json:"external_event_id,omitempty"`
	History         []booking.HistoryEntry `json:"history,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID,
		SlotID:          a.SlotID,
		ProviderID:      a.ProviderID,
		PatientName:     a.PatientName,
		Status:          string(a.Status),
		ExternalEventID: a.ExternalEventID,
		History:         a.History,
	}
}

// Create books a slot.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}

	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.SlotID == uuid.Nil || req.PatientName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "slot_id and patient_name are required"})
		return
	}

	appt, err := h.ledger.Book(r.Context(), p, req.SlotID, booking.PatientInfo{
		ClientID:       req.ClientID,
		Name:           req.PatientName,
		Email:          req.PatientEmail,
		Phone:          req.PatientPhone,
		ReasonForVisit: req.ReasonForVisit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// Get returns one appointment with its history.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid appointment id"})
		return
	}
	appt, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel cancels an appointment.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid appointment id"})
		return
	}

	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	appt, err := h.ledger.Cancel(r.Context(), p, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	NewSlotID uuid.UUID `json:"new_slot_id"`
}

// Reschedule moves an appointment to a new slot.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid appointment id"})
		return
	}

	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil || req.NewSlotID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "new_slot_id is required"})
		return
	}

	appt, err := h.ledger.Reschedule(r.Context(), p, id, req.NewSlotID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Complete marks an appointment completed.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid appointment id"})
		return
	}

	appt, err := h.ledger.Complete(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// ListByProvider returns a provider's appointments in a window.
func (h *AppointmentsHandler) ListByProvider(w http.ResponseWriter, r *http.Request) {
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

	appts, err := h.appts.ListByProvider(r.Context(), providerID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ClearCalendar removes all appointments, slots and blocked intervals for
// a provider.
func (h *AppointmentsHandler) ClearCalendar(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}
	providerID, err := providerIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid provider id"})
		return
	}

	if err := h.ledger.ClearProvider(r.Context(), p, providerID); err != nil {
		writeError(w, err)
		return
	}
	if h.blocked != nil {
		if err := h.blocked.ClearBlockedIntervals(r.Context(), providerID); err != nil {
			h.logger.Warn("failed to clear blocked intervals", "provider_id", providerID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
