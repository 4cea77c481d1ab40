package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/schedcore/internal/gcal"
)

type fakeEventLister struct {
	events []gcal.Event
	err    error
	calls  int
}

func (f *fakeEventLister) ListEventsSince(_ context.Context, _ uuid.UUID, _ time.Time) ([]gcal.Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeLedgerSync struct {
	mu            sync.Mutex
	cancellations []string
	busy          []string
	cancelErr     error
}

func (f *fakeLedgerSync) ApplyExternalCancellation(_ context.Context, _ uuid.UUID, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return false, f.cancelErr
	}
	f.cancellations = append(f.cancellations, eventID)
	return true, nil
}

func (f *fakeLedgerSync) ApplyExternalBusy(_ context.Context, _ uuid.UUID, eventID string, _, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = append(f.busy, eventID)
	return 1, nil
}

func seedChannel(t *testing.T, store *memChannelStore, lastSync time.Time) *Channel {
	t.Helper()
	ch := &Channel{
		ProviderID:   uuid.New(),
		ChannelID:    "chan-1",
		ResourceID:   "res-1",
		Expiration:   time.Now().UTC().Add(7 * 24 * time.Hour),
		LastSyncTime: lastSync,
	}
	require.NoError(t, store.Save(context.Background(), ch))
	return ch
}

func TestReconcileAppliesDiff(t *testing.T) {
	store := newMemChannelStore()
	lastSync := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedChannel(t, store, lastSync)

	start := lastSync.Add(26 * time.Hour)
	lister := &fakeEventLister{events: []gcal.Event{
		{ID: "evt-cancelled", Status: "cancelled", Updated: lastSync.Add(time.Hour)},
		{ID: "evt-busy", Status: "confirmed", Start: start, End: start.Add(time.Hour), Updated: lastSync.Add(2 * time.Hour)},
		{ID: "evt-all-day", Status: "confirmed", AllDay: true, Updated: lastSync.Add(3 * time.Hour)},
	}}
	ledger := &fakeLedgerSync{}

	rec := NewReconciler(store, lister, ledger, nil)
	require.NoError(t, rec.Reconcile(context.Background(), "chan-1"))

	assert.Equal(t, []string{"evt-cancelled"}, ledger.cancellations)
	assert.Equal(t, []string{"evt-busy"}, ledger.busy)

	// The watermark advances to the newest attempted event.
	ch, err := store.GetByChannelID(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.True(t, ch.LastSyncTime.Equal(lastSync.Add(3*time.Hour)))
}

func TestReconcileUnknownChannel(t *testing.T) {
	rec := NewReconciler(newMemChannelStore(), &fakeEventLister{}, &fakeLedgerSync{}, nil)
	assert.ErrorIs(t, rec.Reconcile(context.Background(), "ghost"), ErrChannelNotFound)
}

func TestReconcileSkipsFailedEventButContinues(t *testing.T) {
	store := newMemChannelStore()
	lastSync := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedChannel(t, store, lastSync)

	start := lastSync.Add(26 * time.Hour)
	lister := &fakeEventLister{events: []gcal.Event{
		{ID: "evt-bad", Status: "cancelled", Updated: lastSync.Add(4 * time.Hour)},
		{ID: "evt-good", Status: "confirmed", Start: start, End: start.Add(time.Hour), Updated: lastSync.Add(time.Hour)},
	}}
	ledger := &fakeLedgerSync{cancelErr: assert.AnError}

	rec := NewReconciler(store, lister, ledger, nil)
	require.NoError(t, rec.Reconcile(context.Background(), "chan-1"))

	assert.Equal(t, []string{"evt-good"}, ledger.busy)

	// The failed event does not advance the watermark past itself.
	ch, err := store.GetByChannelID(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.True(t, ch.LastSyncTime.Equal(lastSync.Add(time.Hour)))
}

func TestReconcileNoEventsKeepsWatermark(t *testing.T) {
	store := newMemChannelStore()
	lastSync := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedChannel(t, store, lastSync)

	rec := NewReconciler(store, &fakeEventLister{}, &fakeLedgerSync{}, nil)
	require.NoError(t, rec.Reconcile(context.Background(), "chan-1"))

	ch, err := store.GetByChannelID(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.True(t, ch.LastSyncTime.Equal(lastSync))
}
