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

	"github.com/clinicflow/schedcore/internal/slots"
)

type fakeGenerator struct {
	count int
	err   error
	opts  slots.GenerateOptions
}

func (f *fakeGenerator) GenerateAndPersist(_ context.Context, _ uuid.UUID, opts slots.GenerateOptions) (int, error) {
	f.opts = opts
	return f.count, f.err
}

type fakeSlotLister struct {
	slots    []slots.Slot
	lastType string
}

func (f *fakeSlotLister) ListAvailable(_ context.Context, _ uuid.UUID, _, _ time.Time, appointmentType string) ([]slots.Slot, error) {
	f.lastType = appointmentType
	return f.slots, nil
}

func newSlotsRouter(gen *fakeGenerator, lister *fakeSlotLister) http.Handler {
	h := NewSlotsHandler(gen, lister, nil, nil)
	r := chi.NewRouter()
	r.Post("/providers/{providerID}/slots/generate", h.Generate)
	r.Get("/providers/{providerID}/slots", h.List)
	return r
}

func TestGenerateSlots(t *testing.T) {
	gen := &fakeGenerator{count: 16}
	r := newSlotsRouter(gen, &fakeSlotLister{})

	body := `{"start_date":"2026-03-02","end_date":"2026-03-02","appointment_type":"consultation"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/"+uuid.NewString()+"/slots/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slots_created":16`)
	assert.Equal(t, "consultation", gen.opts.AppointmentType)
	// The generator treats the end date as the last day of the range.
	assert.Equal(t, gen.opts.From, gen.opts.To)
	assert.False(t, gen.opts.Now.IsZero(), "the wall clock must anchor the generation run")
}

func TestGenerateSlotsRejectsBadDates(t *testing.T) {
	r := newSlotsRouter(&fakeGenerator{}, &fakeSlotLister{})

	for name, body := range map[string]string{
		"malformed": `{"start_date":"03/02/2026","end_date":"2026-03-02"}`,
		"reversed":  `{"start_date":"2026-03-09","end_date":"2026-03-02"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/providers/"+uuid.NewString()+"/slots/generate", strings.NewReader(body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGenerateSlotsUnknownType(t *testing.T) {
	r := newSlotsRouter(&fakeGenerator{err: slots.ErrUnknownAppointmentType}, &fakeSlotLister{})

	body := `{"start_date":"2026-03-02","end_date":"2026-03-06","appointment_type":"surgery"}`
	req := httptest.NewRequest(http.MethodPost, "/providers/"+uuid.NewString()+"/slots/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSlotsFiltersByType(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lister := &fakeSlotLister{slots: []slots.Slot{{
		ID:              uuid.New(),
		ProviderID:      uuid.New(),
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		DurationMinutes: 30,
		AppointmentType: "consultation",
		IsAvailable:     true,
	}}}
	r := newSlotsRouter(&fakeGenerator{}, lister)

	req := httptest.NewRequest(http.MethodGet, "/providers/"+uuid.NewString()+"/slots?appointment_type=consultation", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "consultation", lister.lastType)
	assert.Contains(t, w.Body.String(), "2026-03-02T09:00:00Z")
}

func TestListSlotsEmptyIsArray(t *testing.T) {
	r := newSlotsRouter(&fakeGenerator{}, &fakeSlotLister{})

	req := httptest.NewRequest(http.MethodGet, "/providers/"+uuid.NewString()+"/slots", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}
