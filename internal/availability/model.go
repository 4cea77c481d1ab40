package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a wall-clock time in "HH:MM" form, as stored in weekly
// templates and restriction windows.
type TimeOfDay string

// Minutes returns the number of minutes since midnight.
func (t TimeOfDay) Minutes() (int, error) {
	parts := strings.SplitN(string(t), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("availability: invalid time %q", t)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("availability: invalid hour in %q", t)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("availability: invalid minute in %q", t)
	}
	return h*60 + m, nil
}

// Valid reports whether the value parses as HH:MM.
func (t TimeOfDay) Valid() bool {
	_, err := t.Minutes()
	return err == nil
}

// TemplateEntry is one weekday's working hours in the weekly template.
// DayOfWeek follows time.Weekday numbering: 0 = Sunday.
type TemplateEntry struct {
	DayOfWeek int       `json:"day_of_week"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
	Enabled   bool      `json:"enabled"`
}

// RestrictionWindow limits an appointment type to part of the working day.
type RestrictionWindow struct {
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

// AppointmentType describes a bookable service and its slot geometry.
type AppointmentType struct {
	Name            string              `json:"name"`
	DurationMinutes int                 `json:"duration_minutes"`
	BufferBefore    int                 `json:"buffer_before"`
	BufferAfter     int                 `json:"buffer_after"`
	Enabled         bool                `json:"enabled"`
	Restrictions    []RestrictionWindow `json:"restrictions,omitempty"`
}

// BlockedInterval is a provider-declared unavailable range. Recurring
// intervals repeat weekly: the weekday and clock times apply every week.
type BlockedInterval struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
	Recurring bool      `json:"recurring,omitempty"`
}

// Overlaps reports whether [start, end) intersects this blocked interval.
// Recurring intervals repeat weekly at the anchor's weekday and clock
// time; occurrences are placed on the candidate's own calendar days, so
// blocks crossing midnight and candidates entering a block from the
// previous weekday are both caught.
func (b BlockedInterval) Overlaps(start, end time.Time) bool {
	if !b.Recurring {
		return start.Before(b.EndTime) && b.StartTime.Before(end)
	}

	length := b.EndTime.Sub(b.StartTime)
	offset := time.Duration(b.StartTime.Hour())*time.Hour + time.Duration(b.StartTime.Minute())*time.Minute
	// Start one day early: an occurrence anchored on the previous
	// weekday can still reach past midnight into [start, end).
	for day := dayStart(start).AddDate(0, 0, -1); day.Before(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() != b.StartTime.Weekday() {
			continue
		}
		occStart := day.Add(offset)
		occEnd := occStart.Add(length)
		if start.Before(occEnd) && occStart.Before(end) {
			return true
		}
	}
	return false
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// BookingPolicy holds the provider's booking rules.
type BookingPolicy struct {
	BufferTimeBefore           int `json:"buffer_time_before"`
	BufferTimeAfter            int `json:"buffer_time_after"`
	MinLeadTimeHours           int `json:"min_lead_time_hours"`
	MaxAdvanceBookingDays      int `json:"max_advance_booking_days"`
	MinCancellationNoticeHours int `json:"min_cancellation_notice_hours"`
	MinRescheduleNoticeHours   int `json:"min_reschedule_notice_hours"`
	MaxAppointmentsPerDay      int `json:"max_appointments_per_day"`
}

// Rule is a provider's full availability configuration.
type Rule struct {
	ProviderID       uuid.UUID
	WeeklyTemplate   []TemplateEntry
	AppointmentTypes []AppointmentType
	BlockedIntervals []BlockedInterval
	Policy           BookingPolicy
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the structural invariants of the rule.
func (r *Rule) Validate() error {
	for _, e := range r.WeeklyTemplate {
		if e.DayOfWeek < 0 || e.DayOfWeek > 6 {
			return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidRule, e.DayOfWeek)
		}
		sm, err := e.StartTime.Minutes()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		em, err := e.EndTime.Minutes()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		if sm >= em {
			return fmt.Errorf("%w: template entry day %d start %s not before end %s",
				ErrInvalidRule, e.DayOfWeek, e.StartTime, e.EndTime)
		}
	}
	for _, at := range r.AppointmentTypes {
		if at.Name == "" {
			return fmt.Errorf("%w: appointment type without name", ErrInvalidRule)
		}
		if at.DurationMinutes <= 0 {
			return fmt.Errorf("%w: appointment type %q duration must be positive", ErrInvalidRule, at.Name)
		}
		for _, w := range at.Restrictions {
			sm, err := w.StartTime.Minutes()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			em, err := w.EndTime.Minutes()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRule, err)
			}
			if sm >= em {
				return fmt.Errorf("%w: restriction window %s-%s on type %q",
					ErrInvalidRule, w.StartTime, w.EndTime, at.Name)
			}
		}
	}
	for _, b := range r.BlockedIntervals {
		if !b.StartTime.Before(b.EndTime) {
			return fmt.Errorf("%w: blocked interval start not before end", ErrInvalidRule)
		}
	}
	return nil
}

// AppointmentType returns the named enabled type, or nil.
func (r *Rule) AppointmentType(name string) *AppointmentType {
	for i := range r.AppointmentTypes {
		if r.AppointmentTypes[i].Name == name && r.AppointmentTypes[i].Enabled {
			return &r.AppointmentTypes[i]
		}
	}
	return nil
}

// EntryFor returns the enabled template entry for a weekday, or nil.
func (r *Rule) EntryFor(dayOfWeek int) *TemplateEntry {
	for i := range r.WeeklyTemplate {
		if r.WeeklyTemplate[i].DayOfWeek == dayOfWeek && r.WeeklyTemplate[i].Enabled {
			return &r.WeeklyTemplate[i]
		}
	}
	return nil
}

// FirstEnabledWeekday returns the enabled Monday-Friday entry with the
// lowest weekday number. Used as the template for weekend days when the
// caller asks for weekends that have no configured hours.
func (r *Rule) FirstEnabledWeekday() *TemplateEntry {
	var best *TemplateEntry
	for i := range r.WeeklyTemplate {
		e := &r.WeeklyTemplate[i]
		if !e.Enabled || e.DayOfWeek == 0 || e.DayOfWeek == 6 {
			continue
		}
		if best == nil || e.DayOfWeek < best.DayOfWeek {
			best = e
		}
	}
	return best
}

// DefaultRule builds the configuration a provider starts with on first
// calendar connection: Monday-Friday 09:00-17:00 and a single 30 minute
// consultation type.
func DefaultRule(providerID uuid.UUID) *Rule {
	template := make([]TemplateEntry, 0, 5)
	for day := 1; day <= 5; day++ {
		template = append(template, TemplateEntry{
			DayOfWeek: day,
			StartTime: "09:00",
			EndTime:   "17:00",
			Enabled:   true,
		})
	}
	return &Rule{
		ProviderID:     providerID,
		WeeklyTemplate: template,
		AppointmentTypes: []AppointmentType{
			{Name: "consultation", DurationMinutes: 30, Enabled: true},
		},
		Policy: BookingPolicy{
			MinLeadTimeHours:           1,
			MaxAdvanceBookingDays:      60,
			MinCancellationNoticeHours: 24,
			MinRescheduleNoticeHours:   24,
		},
	}
}
