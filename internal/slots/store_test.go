package slots

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsertCountsOnlyNewRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	providerID := uuid.New()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{Start: start, End: start.Add(30 * time.Minute)},
		{Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}

	mock.ExpectExec("INSERT INTO slots").
		WithArgs(pgxmock.AnyArg(), providerID, candidates[0].Start, candidates[0].End, 30, "consultation", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Second candidate already exists: ON CONFLICT DO NOTHING affects zero rows.
	mock.ExpectExec("INSERT INTO slots").
		WithArgs(pgxmock.AnyArg(), providerID, candidates[1].Start, candidates[1].End, 30, "consultation", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewStore(mock)
	inserted, err := store.BulkInsert(context.Background(), providerID, "consultation", 30, candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	slotID := uuid.New()
	mock.ExpectExec("UPDATE slots SET is_available = false").
		WithArgs(slotID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	require.NoError(t, store.Claim(context.Background(), slotID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimAlreadyTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	slotID := uuid.New()
	mock.ExpectExec("UPDATE slots SET is_available = false").
		WithArgs(slotID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)
	assert.ErrorIs(t, store.Claim(context.Background(), slotID), ErrNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferClaimNewSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldID, newID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE slots SET is_available = false").
		WithArgs(newID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	store := NewStore(mock)
	assert.ErrorIs(t, store.TransferClaim(context.Background(), oldID, newID), ErrNotAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	oldID, newID := uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE slots SET is_available = false").
		WithArgs(newID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE slots SET is_available = true").
		WithArgs(oldID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	store := NewStore(mock)
	require.NoError(t, store.TransferClaim(context.Background(), oldID, newID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	slotID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM slots WHERE id").
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	store := NewStore(mock)
	_, err = store.GetByID(context.Background(), slotID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClearsExternalEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	slotID := uuid.New()
	mock.ExpectExec("UPDATE slots SET is_available = true, external_event_id = NULL").
		WithArgs(slotID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	require.NoError(t, store.Release(context.Background(), slotID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
