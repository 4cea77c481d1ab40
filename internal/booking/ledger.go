package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicflow/schedcore/internal/availability"
	"github.com/clinicflow/schedcore/internal/gcal"
	"github.com/clinicflow/schedcore/internal/notify"
	"github.com/clinicflow/schedcore/internal/observability/metrics"
	"github.com/clinicflow/schedcore/internal/slots"
	"github.com/clinicflow/schedcore/pkg/logging"
)

var ledgerTracer = otel.Tracer("schedcore.internal.booking")

// SlotStore is the slot persistence surface the ledger drives.
type SlotStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*slots.Slot, error)
	Claim(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
	TransferClaim(ctx context.Context, oldID, newID uuid.UUID) error
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error
	BlockOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, externalEventID string) (int, error)
	ReleaseByExternalEvent(ctx context.Context, providerID uuid.UUID, externalEventID string) (int, error)
	DeleteAllForProvider(ctx context.Context, providerID uuid.UUID) (int, error)
}

// AppointmentStore is the appointment persistence surface.
type AppointmentStore interface {
	Create(ctx context.Context, a *Appointment, firstAction, performedBy string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetWithHistory(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByExternalEventID(ctx context.Context, providerID uuid.UUID, eventID string) (*Appointment, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, by, reason string) error
	MarkRescheduled(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	SetExternalEventID(ctx context.Context, id uuid.UUID, eventID string) error
	AppendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) error
	CountScheduledOnDay(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) (int, error)
	DeleteAllForProvider(ctx context.Context, providerID uuid.UUID) (int, error)
}

// RuleSource loads booking policy for a provider.
type RuleSource interface {
	EnsureRules(ctx context.Context, providerID uuid.UUID) (*availability.Rule, error)
}

// Calendar mirrors ledger transitions into the external calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, providerID uuid.UUID, in gcal.EventInput) (string, error)
	PatchEvent(ctx context.Context, providerID uuid.UUID, eventID string, patch gcal.EventPatch) error
	DeleteEvent(ctx context.Context, providerID uuid.UUID, eventID string) error
}

// Ledger owns slot and appointment state transitions. The local store is
// the system of record: external calendar failures never roll a local
// mutation back.
type Ledger struct {
	appts    AppointmentStore
	slots    SlotStore
	rules    RuleSource
	calendar Calendar
	notifier notify.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewLedger creates the booking ledger. calendar and notifier may be nil
// in deployments without a connected calendar or mail sender.
func NewLedger(appts AppointmentStore, slotStore SlotStore, rules RuleSource, calendar Calendar, notifier notify.Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Ledger {
	if appts == nil {
		panic("booking: appointment store required")
	}
	if slotStore == nil {
		panic("booking: slot store required")
	}
	if rules == nil {
		panic("booking: rule source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		appts:    appts,
		slots:    slotStore,
		rules:    rules,
		calendar: calendar,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Book claims a slot for a patient. Exactly one of any number of
// concurrent calls for the same slot succeeds; the rest see
// ErrSlotUnavailable.
func (l *Ledger) Book(ctx context.Context, principal Principal, slotID uuid.UUID, info PatientInfo) (*Appointment, error) {
	ctx, span := ledgerTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(attribute.String("schedcore.slot_id", slotID.String()))

	slot, err := l.slots.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, slots.ErrNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	if !slot.IsAvailable {
		l.metrics.ObserveBooking("book", "slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	rule, err := l.rules.EnsureRules(ctx, slot.ProviderID)
	if err != nil {
		return nil, err
	}

	if lead := rule.Policy.MinLeadTimeHours; lead > 0 {
		if l.now().Add(time.Duration(lead) * time.Hour).After(slot.StartTime) {
			l.metrics.ObserveBooking("book", "lead_time")
			return nil, fmt.Errorf("%w: slot starts inside the %dh lead window", ErrSlotUnavailable, lead)
		}
	}

	if max := rule.Policy.MaxAppointmentsPerDay; max > 0 {
		dayStart := startOfDay(slot.StartTime)
		count, err := l.appts.CountScheduledOnDay(ctx, slot.ProviderID, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		if count >= max {
			l.metrics.ObserveBooking("book", "day_cap")
			return nil, fmt.Errorf("%w: provider day is fully booked", ErrPolicyViolation)
		}
	}

	if err := l.slots.Claim(ctx, slotID); err != nil {
		if errors.Is(err, slots.ErrNotAvailable) {
			l.metrics.ObserveBooking("book", "lost_race")
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	appt := &Appointment{
		SlotID:         slot.ID,
		ProviderID:     slot.ProviderID,
		ClientID:       info.ClientID,
		PatientName:    info.Name,
		PatientEmail:   info.Email,
		PatientPhone:   info.Phone,
		ReasonForVisit: info.ReasonForVisit,
		Status:         StatusScheduled,
	}
	if err := l.appts.Create(ctx, appt, "booked", actorLabel(principal)); err != nil {
		// The claim is compensated; the appointment never existed.
		if rerr := l.slots.Release(context.WithoutCancel(ctx), slotID); rerr != nil {
			l.logger.Error("failed to release slot after create failure", "slot_id", slotID, "error", rerr)
		}
		return nil, err
	}

	l.mirrorCreate(context.WithoutCancel(ctx), appt, slot)
	l.sendNotification(ctx, "booked", appt, slot, nil)
	l.metrics.ObserveBooking("book", "success")
	l.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"slot_start", slot.StartTime,
	)
	return appt, nil
}

// Cancel releases an appointment's slot and deletes the mirrored event.
// Patients must respect the cancellation notice window; providers are
// exempt.
func (l *Ledger) Cancel(ctx context.Context, principal Principal, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	ctx, span := ledgerTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("schedcore.appointment_id", appointmentID.String()))

	appt, err := l.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Active() {
		return nil, ErrInvalidTransition
	}

	slot, err := l.slots.GetByID(ctx, appt.SlotID)
	if err != nil {
		return nil, err
	}

	if !principal.IsProvider() {
		rule, err := l.rules.EnsureRules(ctx, appt.ProviderID)
		if err != nil {
			return nil, err
		}
		if notice := rule.Policy.MinCancellationNoticeHours; notice > 0 {
			if l.now().Add(time.Duration(notice) * time.Hour).After(slot.StartTime) {
				l.metrics.ObserveBooking("cancel", "policy_violation")
				return nil, fmt.Errorf("%w: cancellations require %dh notice", ErrPolicyViolation, notice)
			}
		}
	}

	by := actorLabel(principal)
	if err := l.appts.MarkCancelled(ctx, appt.ID, by, reason); err != nil {
		return nil, err
	}
	l.appendHistory(ctx, appt.ID, HistoryEntry{Action: "cancelled", PerformedBy: by, Notes: reason})

	if err := l.slots.Release(ctx, appt.SlotID); err != nil {
		l.logger.Error("failed to release slot on cancel", "slot_id", appt.SlotID, "error", err)
	}

	if appt.ExternalEventID != nil && l.calendar != nil {
		if err := l.calendar.DeleteEvent(context.WithoutCancel(ctx), appt.ProviderID, *appt.ExternalEventID); err != nil {
			l.logger.Warn("failed to delete mirrored event, reconciliation will repair",
				"appointment_id", appt.ID, "event_id", *appt.ExternalEventID, "error", err)
		}
	}

	now := l.now()
	appt.Status = StatusCancelled
	appt.CancelledBy = &by
	appt.CancellationReason = &reason
	appt.CancelledAt = &now

	l.sendNotification(ctx, "cancelled", appt, slot, nil)
	l.metrics.ObserveBooking("cancel", "success")
	l.logger.Info("appointment cancelled", "appointment_id", appt.ID, "by", by)
	return appt, nil
}

// Reschedule moves an appointment to a new slot. Occupancy transfers
// atomically: the new slot is claimed before the old one is freed, in one
// transaction. The old appointment is retained as rescheduled and a new
// one is created against the new slot.
func (l *Ledger) Reschedule(ctx context.Context, principal Principal, appointmentID, newSlotID uuid.UUID) (*Appointment, error) {
	ctx, span := ledgerTracer.Start(ctx, "booking.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("schedcore.appointment_id", appointmentID.String()),
		attribute.String("schedcore.new_slot_id", newSlotID.String()),
	)

	appt, err := l.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Active() {
		return nil, ErrInvalidTransition
	}

	oldSlot, err := l.slots.GetByID(ctx, appt.SlotID)
	if err != nil {
		return nil, err
	}
	newSlot, err := l.slots.GetByID(ctx, newSlotID)
	if err != nil {
		if errors.Is(err, slots.ErrNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	if newSlot.ProviderID != appt.ProviderID {
		return nil, fmt.Errorf("%w: new slot belongs to a different provider", ErrPolicyViolation)
	}

	rule, err := l.rules.EnsureRules(ctx, appt.ProviderID)
	if err != nil {
		return nil, err
	}
	if !principal.IsProvider() {
		if notice := rule.Policy.MinRescheduleNoticeHours; notice > 0 {
			if l.now().Add(time.Duration(notice) * time.Hour).After(oldSlot.StartTime) {
				l.metrics.ObserveBooking("reschedule", "policy_violation")
				return nil, fmt.Errorf("%w: reschedules require %dh notice", ErrPolicyViolation, notice)
			}
		}
	}
	if lead := rule.Policy.MinLeadTimeHours; lead > 0 {
		if l.now().Add(time.Duration(lead) * time.Hour).After(newSlot.StartTime) {
			return nil, fmt.Errorf("%w: new slot starts inside the %dh lead window", ErrSlotUnavailable, lead)
		}
	}

	if err := l.slots.TransferClaim(ctx, oldSlot.ID, newSlot.ID); err != nil {
		if errors.Is(err, slots.ErrNotAvailable) {
			l.metrics.ObserveBooking("reschedule", "slot_unavailable")
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	by := actorLabel(principal)
	if err := l.appts.MarkRescheduled(ctx, appt.ID); err != nil {
		return nil, err
	}
	l.appendHistory(ctx, appt.ID, HistoryEntry{
		Action:      "rescheduled",
		PerformedBy: by,
		Notes:       fmt.Sprintf("moved to slot %s", newSlot.ID),
	})

	newAppt := &Appointment{
		SlotID:         newSlot.ID,
		ProviderID:     appt.ProviderID,
		ClientID:       appt.ClientID,
		PatientName:    appt.PatientName,
		PatientEmail:   appt.PatientEmail,
		PatientPhone:   appt.PatientPhone,
		ReasonForVisit: appt.ReasonForVisit,
		Status:         StatusScheduled,
	}
	if err := l.appts.Create(ctx, newAppt, "rescheduled", by); err != nil {
		return nil, err
	}

	l.mirrorReschedule(context.WithoutCancel(ctx), appt, newAppt, newSlot)
	l.sendNotification(ctx, "rescheduled", appt, oldSlot, newSlot)
	l.metrics.ObserveBooking("reschedule", "success")
	l.logger.Info("appointment rescheduled",
		"old_appointment_id", appt.ID,
		"new_appointment_id", newAppt.ID,
		"new_slot_start", newSlot.StartTime,
	)
	return newAppt, nil
}

// Complete marks a past appointment as completed. Provider-only.
func (l *Ledger) Complete(ctx context.Context, principal Principal, appointmentID uuid.UUID) (*Appointment, error) {
	if !principal.IsProvider() {
		return nil, ErrForbidden
	}
	if err := l.appts.MarkCompleted(ctx, appointmentID); err != nil {
		return nil, err
	}
	l.appendHistory(ctx, appointmentID, HistoryEntry{Action: "completed", PerformedBy: actorLabel(principal)})
	l.metrics.ObserveBooking("complete", "success")
	return l.appts.GetByID(ctx, appointmentID)
}

// Get loads an appointment with its audit history.
func (l *Ledger) Get(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return l.appts.GetWithHistory(ctx, appointmentID)
}

// ApplyExternalCancellation is the internal sync path for events deleted
// or cancelled directly in the external calendar. It mutates local state
// without mirroring back, which would bounce the change to the calendar
// again. Reports whether a local appointment was affected.
func (l *Ledger) ApplyExternalCancellation(ctx context.Context, providerID uuid.UUID, externalEventID string) (bool, error) {
	appt, err := l.appts.GetByExternalEventID(ctx, providerID, externalEventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No appointment: the event may still hold blocked slots.
			released, rerr := l.slots.ReleaseByExternalEvent(ctx, providerID, externalEventID)
			if rerr != nil {
				return false, rerr
			}
			if released > 0 {
				l.logger.Info("released externally blocked slots", "provider_id", providerID, "count", released)
			}
			return false, nil
		}
		return false, err
	}

	if err := l.appts.MarkCancelled(ctx, appt.ID, actorSync, "event removed in external calendar"); err != nil {
		return false, err
	}
	l.appendHistory(ctx, appt.ID, HistoryEntry{Action: "cancelled", PerformedBy: actorSync, Notes: "external calendar change"})
	if err := l.slots.Release(ctx, appt.SlotID); err != nil {
		l.logger.Error("failed to release slot after external cancellation", "slot_id", appt.SlotID, "error", err)
	}
	l.logger.Info("appointment cancelled via calendar sync", "appointment_id", appt.ID)
	return true, nil
}

// ApplyExternalBusy blocks available slots that an externally created
// event now occupies.
func (l *Ledger) ApplyExternalBusy(ctx context.Context, providerID uuid.UUID, externalEventID string, start, end time.Time) (int, error) {
	return l.slots.BlockOverlapping(ctx, providerID, start, end, externalEventID)
}

// ClearProvider removes every appointment and slot for a provider, as
// part of a provider-initiated calendar clear.
func (l *Ledger) ClearProvider(ctx context.Context, principal Principal, providerID uuid.UUID) error {
	if !principal.IsProvider() {
		return ErrForbidden
	}
	appts, err := l.appts.DeleteAllForProvider(ctx, providerID)
	if err != nil {
		return err
	}
	slotCount, err := l.slots.DeleteAllForProvider(ctx, providerID)
	if err != nil {
		return err
	}
	l.logger.Info("provider calendar cleared",
		"provider_id", providerID,
		"appointments", appts,
		"slots", slotCount,
	)
	return nil
}

func (l *Ledger) mirrorCreate(ctx context.Context, appt *Appointment, slot *slots.Slot) {
	if l.calendar == nil {
		return
	}
	eventID, err := l.calendar.CreateEvent(ctx, appt.ProviderID, gcal.EventInput{
		Summary:       fmt.Sprintf("Appointment: %s", appt.PatientName),
		Description:   appt.ReasonForVisit,
		Start:         slot.StartTime,
		End:           slot.EndTime,
		AttendeeEmail: appt.PatientEmail,
		Busy:          true,
	})
	if err != nil {
		l.logger.Warn("failed to mirror booking to calendar, reconciliation will repair",
			"appointment_id", appt.ID, "error", err)
		return
	}
	appt.ExternalEventID = &eventID
	if err := l.appts.SetExternalEventID(ctx, appt.ID, eventID); err != nil {
		l.logger.Error("failed to record event id on appointment", "appointment_id", appt.ID, "error", err)
	}
	if err := l.slots.SetExternalEventID(ctx, appt.SlotID, eventID); err != nil {
		l.logger.Error("failed to record event id on slot", "slot_id", appt.SlotID, "error", err)
	}
}

func (l *Ledger) mirrorReschedule(ctx context.Context, oldAppt, newAppt *Appointment, newSlot *slots.Slot) {
	if l.calendar == nil {
		return
	}
	free := false
	if oldAppt.ExternalEventID != nil {
		if err := l.calendar.PatchEvent(ctx, oldAppt.ProviderID, *oldAppt.ExternalEventID, gcal.EventPatch{Busy: &free}); err != nil {
			l.logger.Warn("failed to mark old event transparent", "event_id", *oldAppt.ExternalEventID, "error", err)
		}
	}

	if newSlot.ExternalEventID != nil {
		busy := true
		if err := l.calendar.PatchEvent(ctx, newAppt.ProviderID, *newSlot.ExternalEventID, gcal.EventPatch{Busy: &busy}); err != nil {
			l.logger.Warn("failed to mark new event opaque", "event_id", *newSlot.ExternalEventID, "error", err)
			return
		}
		newAppt.ExternalEventID = newSlot.ExternalEventID
		if err := l.appts.SetExternalEventID(ctx, newAppt.ID, *newSlot.ExternalEventID); err != nil {
			l.logger.Error("failed to record event id on appointment", "appointment_id", newAppt.ID, "error", err)
		}
		return
	}
	l.mirrorCreate(ctx, newAppt, newSlot)
}

func (l *Ledger) sendNotification(ctx context.Context, kind string, appt *Appointment, slot *slots.Slot, newSlot *slots.Slot) {
	if l.notifier == nil {
		return
	}
	ev := notify.Event{
		PatientName:    appt.PatientName,
		PatientEmail:   appt.PatientEmail,
		Start:          slot.StartTime,
		End:            slot.EndTime,
		ReasonForVisit: appt.ReasonForVisit,
	}
	if newSlot != nil {
		ev.NewStart = newSlot.StartTime
		ev.NewEnd = newSlot.EndTime
	}

	var err error
	switch kind {
	case "booked":
		err = l.notifier.AppointmentBooked(ctx, ev)
	case "cancelled":
		err = l.notifier.AppointmentCancelled(ctx, ev)
	case "rescheduled":
		err = l.notifier.AppointmentRescheduled(ctx, ev)
	}
	if err != nil {
		l.logger.Warn("notification delivery failed", "kind", kind, "appointment_id", appt.ID, "error", err)
	}
}

func (l *Ledger) appendHistory(ctx context.Context, id uuid.UUID, entry HistoryEntry) {
	if err := l.appts.AppendHistory(ctx, id, entry); err != nil {
		l.logger.Error("failed to append history", "appointment_id", id, "error", err)
	}
}

func actorLabel(p Principal) string {
	if p.ID != uuid.Nil {
		return p.ID.String()
	}
	return string(p.Role)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
