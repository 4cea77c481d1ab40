package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Channel is one push-notification subscription. A provider has at most
// one active channel; renewal supersedes it rather than merging.
type Channel struct {
	ProviderID   uuid.UUID
	ChannelID    string
	ResourceID   string
	Expiration   time.Time
	LastSyncTime time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ChannelStore persists webhook channel registrations.
type ChannelStore struct {
	db DB
}

func NewChannelStore(db DB) *ChannelStore {
	if db == nil {
		panic("webhooks: db required")
	}
	return &ChannelStore{db: db}
}

const channelColumns = `provider_id, channel_id, resource_id, expiration, last_sync_time, created_at, updated_at`

// Save upserts the provider's channel registration.
func (s *ChannelStore) Save(ctx context.Context, ch *Channel) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO webhook_channels (provider_id, channel_id, resource_id, expiration, last_sync_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (provider_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			resource_id = EXCLUDED.resource_id,
			expiration = EXCLUDED.expiration,
			last_sync_time = EXCLUDED.last_sync_time,
			updated_at = EXCLUDED.updated_at`,
		ch.ProviderID, ch.ChannelID, ch.ResourceID, ch.Expiration, ch.LastSyncTime, now)
	if err != nil {
		return fmt.Errorf("webhooks: save channel: %w", err)
	}
	return nil
}

// GetByProviderID loads the provider's active channel.
func (s *ChannelStore) GetByProviderID(ctx context.Context, providerID uuid.UUID) (*Channel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+channelColumns+` FROM webhook_channels WHERE provider_id = $1`, providerID)
	return scanChannel(row)
}

// GetByChannelID resolves a notification's channel id to its registration.
func (s *ChannelStore) GetByChannelID(ctx context.Context, channelID string) (*Channel, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+channelColumns+` FROM webhook_channels WHERE channel_id = $1`, channelID)
	return scanChannel(row)
}

// ListAll returns every channel registration, for the renewal sweep.
func (s *ChannelStore) ListAll(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+channelColumns+` FROM webhook_channels ORDER BY expiration ASC`)
	if err != nil {
		return nil, fmt.Errorf("webhooks: list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ProviderID, &ch.ChannelID, &ch.ResourceID, &ch.Expiration, &ch.LastSyncTime, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("webhooks: scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("webhooks: channel rows: %w", err)
	}
	return out, nil
}

// SetLastSyncTime advances the reconciliation watermark.
func (s *ChannelStore) SetLastSyncTime(ctx context.Context, channelID string, t time.Time) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE webhook_channels SET last_sync_time = $2, updated_at = $3
		WHERE channel_id = $1`, channelID, t, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("webhooks: set last sync: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// Delete removes the provider's channel registration.
func (s *ChannelStore) Delete(ctx context.Context, providerID uuid.UUID) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM webhook_channels WHERE provider_id = $1`, providerID)
	if err != nil {
		return fmt.Errorf("webhooks: delete channel: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func scanChannel(row pgx.Row) (*Channel, error) {
	var ch Channel
	err := row.Scan(&ch.ProviderID, &ch.ChannelID, &ch.ResourceID, &ch.Expiration, &ch.LastSyncTime, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("webhooks: get channel: %w", err)
	}
	return &ch, nil
}
