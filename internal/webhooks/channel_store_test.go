package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelStoreSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ch := &Channel{
		ProviderID:   uuid.New(),
		ChannelID:    "chan-1",
		ResourceID:   "res-1",
		Expiration:   time.Now().UTC().Add(7 * 24 * time.Hour),
		LastSyncTime: time.Now().UTC(),
	}
	mock.ExpectExec("INSERT INTO webhook_channels").
		WithArgs(ch.ProviderID, ch.ChannelID, ch.ResourceID, ch.Expiration, ch.LastSyncTime, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewChannelStore(mock)
	require.NoError(t, store.Save(context.Background(), ch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelStoreGetByChannelIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhook_channels WHERE channel_id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"provider_id"}))

	store := NewChannelStore(mock)
	_, err = store.GetByChannelID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelStoreSetLastSyncTimeUnknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE webhook_channels").
		WithArgs("ghost", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewChannelStore(mock)
	err = store.SetLastSyncTime(context.Background(), "ghost", time.Now().UTC())
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStoreMarkProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO processed_notifications").
		WithArgs("chan-1", "42").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO processed_notifications").
		WithArgs("chan-1", "42").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewProcessedStore(mock)
	fresh, err := store.MarkProcessed(context.Background(), "chan-1", "42")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.MarkProcessed(context.Background(), "chan-1", "42")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedStoreAlreadyProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_notifications").
		WithArgs("chan-1", "42").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}))

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyProcessed(context.Background(), "chan-1", "42")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}
