package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/observability/metrics"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type channelRenewer interface {
	RenewIfExpiringSoon(ctx context.Context, providerID uuid.UUID, threshold time.Duration) (bool, error)
}

type channelList interface {
	ListAll(ctx context.Context) ([]Channel, error)
}

// RenewalWorker periodically renews webhook channels before they expire.
type RenewalWorker struct {
	manager   channelRenewer
	channels  channelList
	interval  time.Duration
	threshold time.Duration
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

// NewRenewalWorker creates the worker with the default cadence: sweep
// every 6 hours, renew channels expiring within 48 hours.
func NewRenewalWorker(manager channelRenewer, channels channelList, m *metrics.SchedulingMetrics, logger *logging.Logger) *RenewalWorker {
	if manager == nil {
		panic("webhooks: channel manager required")
	}
	if channels == nil {
		panic("webhooks: channel list required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RenewalWorker{
		manager:   manager,
		channels:  channels,
		interval:  6 * time.Hour,
		threshold: 48 * time.Hour,
		metrics:   m,
		logger:    logger,
	}
}

// WithInterval sets the sweep interval.
func (w *RenewalWorker) WithInterval(interval time.Duration) *RenewalWorker {
	w.interval = interval
	return w
}

// WithThreshold sets how close to expiry a channel must be to renew.
func (w *RenewalWorker) WithThreshold(threshold time.Duration) *RenewalWorker {
	w.threshold = threshold
	return w
}

// Start runs the renewal loop. Blocks until the context is cancelled.
func (w *RenewalWorker) Start(ctx context.Context) {
	w.logger.Info("starting webhook renewal worker",
		"interval", w.interval.String(),
		"threshold", w.threshold.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.renewExpiring(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("renewal worker shutting down")
			return
		case <-ticker.C:
			w.renewExpiring(ctx)
		}
	}
}

// RunOnce performs a single sweep. Useful for tests and manual triggers.
func (w *RenewalWorker) RunOnce(ctx context.Context) {
	w.renewExpiring(ctx)
}

// renewExpiring sweeps every known channel. One provider's failure must
// not block the rest of the sweep.
func (w *RenewalWorker) renewExpiring(ctx context.Context) {
	channels, err := w.channels.ListAll(ctx)
	if err != nil {
		w.logger.Error("failed to list channels for renewal", "error", err)
		return
	}
	if len(channels) == 0 {
		w.logger.Debug("no channels to renew")
		return
	}

	for _, ch := range channels {
		renewed, err := w.manager.RenewIfExpiringSoon(ctx, ch.ProviderID, w.threshold)
		if err != nil {
			w.metrics.ObserveRenewal("failed")
			w.logger.Error("channel renewal failed",
				"provider_id", ch.ProviderID, "channel_id", ch.ChannelID, "error", err)
			continue
		}
		if renewed {
			w.metrics.ObserveRenewal("renewed")
			w.logger.Info("channel renewed", "provider_id", ch.ProviderID)
		} else {
			w.metrics.ObserveRenewal("skipped")
		}
	}
}
