package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/gcal"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type channelLookup interface {
	GetByChannelID(ctx context.Context, channelID string) (*Channel, error)
	SetLastSyncTime(ctx context.Context, channelID string, t time.Time) error
}

type eventLister interface {
	ListEventsSince(ctx context.Context, providerID uuid.UUID, since time.Time) ([]gcal.Event, error)
}

type ledgerSync interface {
	ApplyExternalCancellation(ctx context.Context, providerID uuid.UUID, externalEventID string) (bool, error)
	ApplyExternalBusy(ctx context.Context, providerID uuid.UUID, externalEventID string, start, end time.Time) (int, error)
}

// Reconciler pulls calendar changes since a channel's watermark and feeds
// them into the ledger's sync path. Changes that originated externally
// never travel back out through the adapter, which would bounce them to
// the calendar again.
type Reconciler struct {
	channels channelLookup
	calendar eventLister
	ledger   ledgerSync
	logger   *logging.Logger
}

func NewReconciler(channels channelLookup, calendar eventLister, ledger ledgerSync, logger *logging.Logger) *Reconciler {
	if channels == nil {
		panic("webhooks: channel lookup required")
	}
	if calendar == nil {
		panic("webhooks: event lister required")
	}
	if ledger == nil {
		panic("webhooks: ledger sync required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{channels: channels, calendar: calendar, ledger: ledger, logger: logger}
}

// Reconcile processes every event updated since the channel's last sync.
// Individual event failures are logged and skipped; one bad event must
// not wedge the rest of the pull. The watermark only advances past the
// events that were actually attempted.
func (r *Reconciler) Reconcile(ctx context.Context, channelID string) error {
	ch, err := r.channels.GetByChannelID(ctx, channelID)
	if err != nil {
		return err
	}

	events, err := r.calendar.ListEventsSince(ctx, ch.ProviderID, ch.LastSyncTime)
	if err != nil {
		return err
	}

	watermark := ch.LastSyncTime
	for _, ev := range events {
		if err := r.applyEvent(ctx, ch.ProviderID, ev); err != nil {
			r.logger.Error("failed to reconcile event",
				"provider_id", ch.ProviderID, "event_id", ev.ID, "error", err)
			continue
		}
		if ev.Updated.After(watermark) {
			watermark = ev.Updated
		}
	}

	if watermark.After(ch.LastSyncTime) {
		if err := r.channels.SetLastSyncTime(ctx, channelID, watermark); err != nil {
			return err
		}
	}
	r.logger.Info("reconciliation pull complete",
		"provider_id", ch.ProviderID, "events", len(events))
	return nil
}

func (r *Reconciler) applyEvent(ctx context.Context, providerID uuid.UUID, ev gcal.Event) error {
	switch ev.Status {
	case "cancelled":
		_, err := r.ledger.ApplyExternalCancellation(ctx, providerID, ev.ID)
		return err
	default:
		// All-day events carry no usable interval for slot blocking.
		if ev.AllDay || ev.Start.IsZero() || ev.End.IsZero() {
			return nil
		}
		blocked, err := r.ledger.ApplyExternalBusy(ctx, providerID, ev.ID, ev.Start, ev.End)
		if err != nil {
			return err
		}
		if blocked > 0 {
			r.logger.Info("blocked slots for external event",
				"provider_id", providerID, "event_id", ev.ID, "count", blocked)
		}
		return nil
	}
}
