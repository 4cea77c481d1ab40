package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/schedcore/pkg/logging"
)

// Event carries the formatted fields of an appointment notification.
// Delivery itself is an external concern; this package only formats and
// hands off.
type Event struct {
	PatientName    string
	PatientEmail   string
	Start          time.Time
	End            time.Time
	ReasonForVisit string

	// NewStart/NewEnd are set for reschedule notifications.
	NewStart time.Time
	NewEnd   time.Time
}

// Notifier delivers patient-facing appointment notifications.
type Notifier interface {
	AppointmentBooked(ctx context.Context, ev Event) error
	AppointmentCancelled(ctx context.Context, ev Event) error
	AppointmentRescheduled(ctx context.Context, ev Event) error
}

// Service formats notifications and dispatches them via an EmailSender.
// Without a sender it degrades to structured logging, which keeps local
// development and tests free of external calls.
type Service struct {
	sender EmailSender
	logger *logging.Logger
}

// NewService creates a notification service. sender may be nil.
func NewService(sender EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, logger: logger}
}

const timeLayout = "Monday, January 2 at 15:04"

// AppointmentBooked notifies the patient about a confirmed booking.
func (s *Service) AppointmentBooked(ctx context.Context, ev Event) error {
	subject := "Your appointment is confirmed"
	body := fmt.Sprintf("Hi %s,\n\nYour appointment on %s is confirmed.\n",
		ev.PatientName, ev.Start.Format(timeLayout))
	return s.dispatch(ctx, "booked", ev, subject, body)
}

// AppointmentCancelled notifies the patient about a cancellation.
func (s *Service) AppointmentCancelled(ctx context.Context, ev Event) error {
	subject := "Your appointment was cancelled"
	body := fmt.Sprintf("Hi %s,\n\nYour appointment on %s has been cancelled.\n",
		ev.PatientName, ev.Start.Format(timeLayout))
	return s.dispatch(ctx, "cancelled", ev, subject, body)
}

// AppointmentRescheduled notifies the patient about a moved appointment.
func (s *Service) AppointmentRescheduled(ctx context.Context, ev Event) error {
	subject := "Your appointment was rescheduled"
	body := fmt.Sprintf("Hi %s,\n\nYour appointment moved from %s to %s.\n",
		ev.PatientName, ev.Start.Format(timeLayout), ev.NewStart.Format(timeLayout))
	return s.dispatch(ctx, "rescheduled", ev, subject, body)
}

func (s *Service) dispatch(ctx context.Context, kind string, ev Event, subject, body string) error {
	if s.sender == nil || ev.PatientEmail == "" {
		s.logger.Info("notification (log only)",
			"kind", kind,
			"patient", ev.PatientName,
			"start", ev.Start,
		)
		return nil
	}
	return s.sender.Send(ctx, EmailMessage{
		To:      ev.PatientEmail,
		ToName:  ev.PatientName,
		Subject: subject,
		Body:    body,
	})
}
