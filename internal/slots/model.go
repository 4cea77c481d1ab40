package slots

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a discrete bookable interval for one provider. Slots for the
// same provider never overlap.
type Slot struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	AppointmentType string
	IsAvailable     bool
	ExternalEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Candidate is a generated (start, end) pair not yet persisted.
type Candidate struct {
	Start time.Time
	End   time.Time
}

// Interval returns the slot's [start, end) pair.
func (s *Slot) Interval() (time.Time, time.Time) {
	return s.StartTime, s.EndTime
}

// Overlaps reports whether the slot intersects [start, end).
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}
