package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/clinicflow/schedcore/internal/observability/metrics"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, channelID, messageNumber string) (bool, error)
	MarkProcessed(ctx context.Context, channelID, messageNumber string) (bool, error)
}

type reconcilePuller interface {
	Reconcile(ctx context.Context, channelID string) error
}

// Processor is the webhook ingress handler. It validates headers and
// signature, drops replays, and hands fresh notifications to the
// reconciler. A failure on one notification only affects its own
// response; the handler never panics the ingress.
type Processor struct {
	secret     string
	processed  processedTracker
	reconciler reconcilePuller
	metrics    *metrics.SchedulingMetrics
	logger     *logging.Logger
}

func NewProcessor(secret string, processed processedTracker, reconciler reconcilePuller, m *metrics.SchedulingMetrics, logger *logging.Logger) *Processor {
	if processed == nil {
		panic("webhooks: processed tracker required")
	}
	if reconciler == nil {
		panic("webhooks: reconciler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		secret:     secret,
		processed:  processed,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger,
	}
}

func (p *Processor) Handle(w http.ResponseWriter, r *http.Request) {
	// The push protocol delivers empty bodies; drain so the connection
	// can be reused.
	_, _ = io.Copy(io.Discard, r.Body)

	n, err := ParseNotification(r.Header)
	if err != nil {
		http.Error(w, "missing required headers", http.StatusBadRequest)
		return
	}

	if err := n.Verify(p.secret); err != nil {
		p.logger.Warn("webhook signature rejected", "channel_id", n.ChannelID)
		p.metrics.ObserveWebhook(n.ResourceState, "invalid_signature")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// The initial sync message confirms the watch; there is nothing to pull.
	if n.ResourceState == StateSync {
		p.metrics.ObserveWebhook(n.ResourceState, "ack")
		w.WriteHeader(http.StatusOK)
		return
	}

	seen, err := p.processed.AlreadyProcessed(r.Context(), n.ChannelID, n.MessageNumber)
	if err != nil {
		p.logger.Error("processed lookup failed", "channel_id", n.ChannelID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if seen {
		p.metrics.ObserveWebhook(n.ResourceState, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := p.reconciler.Reconcile(r.Context(), n.ChannelID); err != nil {
		p.logger.Error("reconciliation failed",
			"channel_id", n.ChannelID, "message_number", n.MessageNumber, "error", err)
		p.metrics.ObserveWebhook(n.ResourceState, "failed")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := p.processed.MarkProcessed(r.Context(), n.ChannelID, n.MessageNumber); err != nil {
		p.logger.Error("failed to record processed notification",
			"channel_id", n.ChannelID, "message_number", n.MessageNumber, "error", err)
	}
	p.metrics.ObserveWebhook(n.ResourceState, "processed")
	w.WriteHeader(http.StatusOK)
}
