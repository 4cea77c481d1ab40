package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeOfDayMinutes(t *testing.T) {
	m, err := TimeOfDay("09:30").Minutes()
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	for _, bad := range []TimeOfDay{"9am", "25:00", "12:75", "", "12"} {
		_, err := bad.Minutes()
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

func TestRuleValidate(t *testing.T) {
	rule := DefaultRule(uuid.New())
	require.NoError(t, rule.Validate())

	bad := DefaultRule(uuid.New())
	bad.WeeklyTemplate[0].DayOfWeek = 7
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = DefaultRule(uuid.New())
	bad.WeeklyTemplate[0].StartTime = "18:00"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = DefaultRule(uuid.New())
	bad.AppointmentTypes[0].DurationMinutes = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)

	bad = DefaultRule(uuid.New())
	bad.AppointmentTypes[0].Restrictions = []RestrictionWindow{{StartTime: "14:00", EndTime: "13:00"}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRule)
}

func TestEntryForAndWeekendFallback(t *testing.T) {
	rule := DefaultRule(uuid.New())

	monday := rule.EntryFor(1)
	require.NotNil(t, monday)
	assert.Equal(t, TimeOfDay("09:00"), monday.StartTime)

	assert.Nil(t, rule.EntryFor(0), "sunday has no configured entry")
	assert.Nil(t, rule.EntryFor(6), "saturday has no configured entry")

	fallback := rule.FirstEnabledWeekday()
	require.NotNil(t, fallback)
	assert.Equal(t, 1, fallback.DayOfWeek)

	// Disabling Monday moves the fallback to Tuesday.
	rule.WeeklyTemplate[0].Enabled = false
	fallback = rule.FirstEnabledWeekday()
	require.NotNil(t, fallback)
	assert.Equal(t, 2, fallback.DayOfWeek)
}

func TestBlockedIntervalOverlaps(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	blocked := BlockedInterval{
		StartTime: day.Add(12 * time.Hour),
		EndTime:   day.Add(13 * time.Hour),
	}

	assert.True(t, blocked.Overlaps(day.Add(12*time.Hour+30*time.Minute), day.Add(13*time.Hour)))
	assert.True(t, blocked.Overlaps(day.Add(11*time.Hour+30*time.Minute), day.Add(12*time.Hour+15*time.Minute)))
	assert.False(t, blocked.Overlaps(day.Add(13*time.Hour), day.Add(14*time.Hour)), "touching boundary is not overlap")
	assert.False(t, blocked.Overlaps(day.Add(10*time.Hour), day.Add(11*time.Hour)))
}

func TestBlockedIntervalRecurring(t *testing.T) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	blocked := BlockedInterval{
		StartTime: monday.Add(12 * time.Hour),
		EndTime:   monday.Add(13 * time.Hour),
		Recurring: true,
	}

	nextMonday := monday.AddDate(0, 0, 7)
	assert.True(t, blocked.Overlaps(nextMonday.Add(12*time.Hour), nextMonday.Add(12*time.Hour+30*time.Minute)))

	tuesday := monday.AddDate(0, 0, 1)
	assert.False(t, blocked.Overlaps(tuesday.Add(12*time.Hour), tuesday.Add(13*time.Hour)))
}

func TestBlockedIntervalRecurringAcrossMidnight(t *testing.T) {
	friday := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	blocked := BlockedInterval{
		StartTime: friday.Add(22 * time.Hour),
		EndTime:   friday.AddDate(0, 0, 1).Add(2 * time.Hour), // Saturday 02:00
		Recurring: true,
	}

	nextSaturday := friday.AddDate(0, 0, 8)
	assert.True(t, blocked.Overlaps(nextSaturday.Add(1*time.Hour), nextSaturday.Add(90*time.Minute)),
		"the tail of a Friday block reaches into Saturday morning")
	assert.False(t, blocked.Overlaps(nextSaturday.Add(2*time.Hour), nextSaturday.Add(3*time.Hour)),
		"touching the block end is not overlap")

	nextFriday := friday.AddDate(0, 0, 7)
	assert.True(t, blocked.Overlaps(nextFriday.Add(23*time.Hour), nextFriday.AddDate(0, 0, 1)))
}

func TestBlockedIntervalRecurringCandidateEntersFromPreviousDay(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	blocked := BlockedInterval{
		StartTime: saturday,                    // Saturday 00:00
		EndTime:   saturday.Add(1 * time.Hour), // Saturday 01:00
		Recurring: true,
	}

	// A candidate starting late Friday and running past midnight hits
	// the Saturday occurrence even though its start is a different
	// weekday.
	friday := saturday.AddDate(0, 0, 6)
	assert.True(t, blocked.Overlaps(friday.Add(23*time.Hour+30*time.Minute), friday.Add(24*time.Hour+30*time.Minute)))
	assert.False(t, blocked.Overlaps(friday.Add(22*time.Hour), friday.Add(23*time.Hour)))
}

func TestDefaultRule(t *testing.T) {
	providerID := uuid.New()
	rule := DefaultRule(providerID)

	assert.Equal(t, providerID, rule.ProviderID)
	assert.Len(t, rule.WeeklyTemplate, 5)
	require.NotNil(t, rule.AppointmentType("consultation"))
	assert.Nil(t, rule.AppointmentType("surgery"))
	assert.Equal(t, 1, rule.Policy.MinLeadTimeHours)
}
