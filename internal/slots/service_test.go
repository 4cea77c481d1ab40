package slots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/schedcore/internal/availability"
)

type fakeRuleSource struct {
	rule *availability.Rule
}

func (f *fakeRuleSource) EnsureRules(_ context.Context, providerID uuid.UUID) (*availability.Rule, error) {
	if f.rule == nil {
		f.rule = availability.DefaultRule(providerID)
	}
	return f.rule, nil
}

type fakeSlotWriter struct {
	slots []Slot
}

func (f *fakeSlotWriter) ListInRange(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	var out []Slot
	for _, s := range f.slots {
		if s.ProviderID == providerID && s.StartTime.Before(to) && from.Before(s.EndTime) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSlotWriter) BulkInsert(_ context.Context, providerID uuid.UUID, appointmentType string, durationMinutes int, candidates []Candidate) (int, error) {
	inserted := 0
	for _, c := range candidates {
		dup := false
		for _, s := range f.slots {
			if s.ProviderID == providerID && s.StartTime.Equal(c.Start) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		f.slots = append(f.slots, Slot{
			ID:              uuid.New(),
			ProviderID:      providerID,
			StartTime:       c.Start,
			EndTime:         c.End,
			DurationMinutes: durationMinutes,
			AppointmentType: appointmentType,
			IsAvailable:     true,
		})
		inserted++
	}
	return inserted, nil
}

func TestGenerateAndPersistIdempotent(t *testing.T) {
	providerID := uuid.New()
	writer := &fakeSlotWriter{}
	svc := NewService(&fakeRuleSource{}, writer, nil)

	opts := GenerateOptions{
		From:            monday,
		To:              monday.AddDate(0, 0, 4),
		AppointmentType: "consultation",
		Now:             monday.AddDate(0, 0, -1),
	}

	first, err := svc.GenerateAndPersist(context.Background(), providerID, opts)
	require.NoError(t, err)
	assert.Equal(t, 80, first, "Mon-Fri, 16 half-hour slots per day")

	second, err := svc.GenerateAndPersist(context.Background(), providerID, opts)
	require.NoError(t, err)
	assert.Zero(t, second, "second run over the same range inserts nothing")
	assert.Len(t, writer.slots, 80)
}

// The HTTP handler builds its options from request dates only; a run
// without an explicit Now must fall back to the wall clock instead of
// clamping the advance-booking horizon to year one and producing nothing.
func TestGenerateAndPersistDefaultsNowToWallClock(t *testing.T) {
	providerID := uuid.New()
	writer := &fakeSlotWriter{}
	svc := NewService(&fakeRuleSource{}, writer, nil)

	// A Monday at least a week ahead, well inside the default 60 day
	// horizon and never subject to today adjustment.
	day := time.Now().UTC().AddDate(0, 0, 7)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	count, err := svc.GenerateAndPersist(context.Background(), providerID, GenerateOptions{
		From:            day,
		To:              day,
		AppointmentType: "consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, 16, count, "a full default Monday yields 16 half-hour slots")
}

func TestGenerateAndPersistUnknownType(t *testing.T) {
	svc := NewService(&fakeRuleSource{}, &fakeSlotWriter{}, nil)
	_, err := svc.GenerateAndPersist(context.Background(), uuid.New(), GenerateOptions{
		From:            monday,
		To:              monday,
		AppointmentType: "laser-removal",
		Now:             monday,
	})
	assert.ErrorIs(t, err, ErrUnknownAppointmentType)
}
