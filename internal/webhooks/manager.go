package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/schedcore/internal/gcal"
	"github.com/clinicflow/schedcore/pkg/logging"
)

type channelWatcher interface {
	Watch(ctx context.Context, providerID uuid.UUID, channelID, callbackURL, token string, ttl time.Duration) (*gcal.Channel, error)
	StopChannel(ctx context.Context, providerID uuid.UUID, channelID, resourceID string) error
}

type channelPersistence interface {
	Save(ctx context.Context, ch *Channel) error
	GetByProviderID(ctx context.Context, providerID uuid.UUID) (*Channel, error)
	Delete(ctx context.Context, providerID uuid.UUID) error
}

// ChannelManager owns the webhook channel lifecycle against the external
// calendar. A provider has exactly one channel; setup supersedes any
// prior registration and stops it explicitly.
type ChannelManager struct {
	store       channelPersistence
	calendar    channelWatcher
	secret      string
	callbackURL string
	ttl         time.Duration
	logger      *logging.Logger
	now         func() time.Time
}

// NewChannelManager creates the manager. callbackURL is the public
// webhook ingress address registered with each watch.
func NewChannelManager(store channelPersistence, calendar channelWatcher, secret, callbackURL string, logger *logging.Logger) *ChannelManager {
	if store == nil {
		panic("webhooks: channel store required")
	}
	if calendar == nil {
		panic("webhooks: calendar watcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChannelManager{
		store:       store,
		calendar:    calendar,
		secret:      secret,
		callbackURL: callbackURL,
		ttl:         7 * 24 * time.Hour,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithTTL sets the requested channel lifetime.
func (m *ChannelManager) WithTTL(ttl time.Duration) *ChannelManager {
	m.ttl = ttl
	return m
}

// WithClock overrides the time source for tests.
func (m *ChannelManager) WithClock(now func() time.Time) *ChannelManager {
	m.now = now
	return m
}

// Setup registers a fresh push-notification channel for the provider and
// persists it. Any prior channel is stopped first so it does not dangle.
func (m *ChannelManager) Setup(ctx context.Context, providerID uuid.UUID) (*Channel, error) {
	prior, err := m.store.GetByProviderID(ctx, providerID)
	if err == nil {
		if serr := m.calendar.StopChannel(ctx, providerID, prior.ChannelID, prior.ResourceID); serr != nil {
			m.logger.Warn("failed to stop superseded channel",
				"provider_id", providerID, "channel_id", prior.ChannelID, "error", serr)
		}
	}

	channelID := uuid.NewString()
	token := ChannelToken(m.secret, channelID)
	watched, err := m.calendar.Watch(ctx, providerID, channelID, m.callbackURL, token, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("webhooks: register watch: %w", err)
	}

	ch := &Channel{
		ProviderID:   providerID,
		ChannelID:    watched.ChannelID,
		ResourceID:   watched.ResourceID,
		Expiration:   watched.Expiration,
		LastSyncTime: m.now(),
	}
	if err := m.store.Save(ctx, ch); err != nil {
		return nil, err
	}
	m.logger.Info("webhook channel registered",
		"provider_id", providerID,
		"channel_id", ch.ChannelID,
		"expires", ch.Expiration,
	)
	return ch, nil
}

// RenewIfExpiringSoon re-registers the provider's channel when it expires
// within threshold. Reports whether a renewal happened.
func (m *ChannelManager) RenewIfExpiringSoon(ctx context.Context, providerID uuid.UUID, threshold time.Duration) (bool, error) {
	ch, err := m.store.GetByProviderID(ctx, providerID)
	if err != nil {
		return false, err
	}
	if ch.Expiration.Sub(m.now()) >= threshold {
		return false, nil
	}
	if _, err := m.Setup(ctx, providerID); err != nil {
		return false, err
	}
	return true, nil
}

// Stop tears the channel down externally and locally.
func (m *ChannelManager) Stop(ctx context.Context, providerID uuid.UUID) error {
	ch, err := m.store.GetByProviderID(ctx, providerID)
	if err != nil {
		return err
	}
	if err := m.calendar.StopChannel(ctx, providerID, ch.ChannelID, ch.ResourceID); err != nil {
		return fmt.Errorf("webhooks: stop channel: %w", err)
	}
	return m.store.Delete(ctx, providerID)
}
