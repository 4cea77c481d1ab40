package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/schedcore/internal/booking"
)

type fakeLedger struct {
	bookErr    error
	cancelErr  error
	booked     *booking.Appointment
	cleared    []uuid.UUID
	lastSlotID uuid.UUID
}

func (f *fakeLedger) Book(_ context.Context, _ booking.Principal, slotID uuid.UUID, info booking.PatientInfo) (*booking.Appointment, error) {
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	f.lastSlotID = slotID
	f.booked = &booking.Appointment{
		ID:          uuid.New(),
		SlotID:      slotID,
		ProviderID:  uuid.New(),
		PatientName: info.Name,
		Status:      booking.StatusScheduled,
	}
	return f.booked, nil
}

func (f *fakeLedger) Cancel(_ context.Context, _ booking.Principal, id uuid.UUID, _ string) (*booking.Appointment, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &booking.Appointment{ID: id, Status: booking.StatusCancelled}, nil
}

func (f *fakeLedger) Reschedule(_ context.Context, _ booking.Principal, _, newSlotID uuid.UUID) (*booking.Appointment, error) {
	return &booking.Appointment{ID: uuid.New(), SlotID: newSlotID, Status: booking.StatusScheduled}, nil
}

func (f *fakeLedger) Complete(_ context.Context, _ booking.Principal, id uuid.UUID) (*booking.Appointment, error) {
	return &booking.Appointment{ID: id, Status: booking.StatusCompleted}, nil
}

func (f *fakeLedger) Get(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return nil, booking.ErrNotFound
}

func (f *fakeLedger) ClearProvider(_ context.Context, _ booking.Principal, providerID uuid.UUID) error {
	f.cleared = append(f.cleared, providerID)
	return nil
}

type fakeApptLister struct{ appts []booking.Appointment }

func (f *fakeApptLister) ListByProvider(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]booking.Appointment, error) {
	return f.appts, nil
}

func staticPrincipal(p booking.Principal) PrincipalResolver {
	return func(context.Context) (booking.Principal, bool) { return p, true }
}

func newApptRouter(ledger *fakeLedger) http.Handler {
	h := NewAppointmentsHandler(ledger, &fakeApptLister{}, nil,
		staticPrincipal(booking.Principal{ID: uuid.New(), Role: booking.RolePatient}), nil)
	r := chi.NewRouter()
	r.Post("/appointments", h.Create)
	r.Get("/appointments/{appointmentID}", h.Get)
	r.Patch("/appointments/{appointmentID}/cancel", h.Cancel)
	r.Patch("/appointments/{appointmentID}/reschedule", h.Reschedule)
	r.Delete("/providers/{providerID}/calendar", h.ClearCalendar)
	return r
}

func TestCreateAppointment(t *testing.T) {
	ledger := &fakeLedger{}
	r := newApptRouter(ledger)

	slotID := uuid.New()
	body := `{"slot_id":"` + slotID.String() + `","patient_name":"Jordan Reyes"}`
	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, slotID, ledger.lastSlotID)
	assert.Contains(t, w.Body.String(), "scheduled")
}

func TestCreateAppointmentValidation(t *testing.T) {
	r := newApptRouter(&fakeLedger{})

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(`{"patient_name":"No Slot"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAppointmentSlotTaken(t *testing.T) {
	r := newApptRouter(&fakeLedger{bookErr: booking.ErrSlotUnavailable})

	body := `{"slot_id":"` + uuid.NewString() + `","patient_name":"Jordan"}`
	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelPolicyViolation(t *testing.T) {
	r := newApptRouter(&fakeLedger{cancelErr: booking.ErrPolicyViolation})

	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+uuid.NewString()+"/cancel", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetAppointmentNotFound(t *testing.T) {
	r := newApptRouter(&fakeLedger{})

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRescheduleRequiresNewSlot(t *testing.T) {
	r := newApptRouter(&fakeLedger{})

	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+uuid.NewString()+"/reschedule", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearCalendar(t *testing.T) {
	ledger := &fakeLedger{}
	r := newApptRouter(ledger)

	providerID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/providers/"+providerID.String()+"/calendar", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []uuid.UUID{providerID}, ledger.cleared)
}
