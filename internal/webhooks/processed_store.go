package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProcessedStore records notifications that were already handled, keyed
// by (channel id, message number). External calendars redeliver, so this
// backs the at-least-once idempotency guarantee.
type ProcessedStore struct {
	db DB
}

func NewProcessedStore(db DB) *ProcessedStore {
	if db == nil {
		panic("webhooks: db required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks if this (channel, message number) pair was seen.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, channelID, messageNumber string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM processed_notifications WHERE channel_id = $1 AND message_number = $2`,
		channelID, messageNumber).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("webhooks: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed records the pair, returning false if it already existed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, channelID, messageNumber string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		INSERT INTO processed_notifications (channel_id, message_number)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, channelID, messageNumber)
	if err != nil {
		return false, fmt.Errorf("webhooks: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
