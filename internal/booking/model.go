// Package booking owns the appointment lifecycle. The local ledger is the
// system of record; the external calendar is a mirror kept in sync on a
// best-effort basis.
package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
)

// Role identifies the kind of actor behind a ledger call.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"

	// actorSync marks history entries written by calendar reconciliation.
	actorSync = "calendar-sync"
)

// Principal is the authenticated actor, supplied by the external auth
// collaborator. The ledger treats role checks as capability checks at the
// boundary.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// IsProvider reports whether the principal acts on the provider side.
func (p Principal) IsProvider() bool {
	return p.Role == RoleProvider
}

// PatientInfo is the booking form payload.
type PatientInfo struct {
	ClientID       *uuid.UUID
	Name           string
	Email          string
	Phone          string
	ReasonForVisit string
}

// HistoryEntry is one record in an appointment's append-only audit log.
type HistoryEntry struct {
	Action      string
	Timestamp   time.Time
	PerformedBy string
	Notes       string
}

// Appointment is a patient's claim on a slot.
type Appointment struct {
	ID                 uuid.UUID
	SlotID             uuid.UUID
	ProviderID         uuid.UUID
	ClientID           *uuid.UUID
	PatientName        string
	PatientEmail       string
	PatientPhone       string
	ReasonForVisit     string
	Status             Status
	ExternalEventID    *string
	CancelledBy        *string
	CancellationReason *string
	CancelledAt        *time.Time
	History            []HistoryEntry
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status == StatusScheduled
}

// Terminal reports whether the appointment reached a final state.
func (a *Appointment) Terminal() bool {
	return a.Status == StatusCancelled || a.Status == StatusRescheduled || a.Status == StatusCompleted
}
