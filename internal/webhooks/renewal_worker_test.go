package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRenewer struct {
	mu      sync.Mutex
	fail    map[uuid.UUID]error
	renewed []uuid.UUID
}

func (s *scriptedRenewer) RenewIfExpiringSoon(_ context.Context, providerID uuid.UUID, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[providerID]; ok {
		return false, err
	}
	s.renewed = append(s.renewed, providerID)
	return true, nil
}

func TestRenewalSweepIsolatesFailures(t *testing.T) {
	store := newMemChannelStore()
	failing := uuid.New()
	healthy := uuid.New()
	for _, id := range []uuid.UUID{failing, healthy} {
		require.NoError(t, store.Save(context.Background(), &Channel{
			ProviderID: id,
			ChannelID:  uuid.NewString(),
			Expiration: time.Now().UTC().Add(time.Hour),
		}))
	}

	renewer := &scriptedRenewer{fail: map[uuid.UUID]error{failing: assert.AnError}}
	worker := NewRenewalWorker(renewer, store, nil, nil).
		WithInterval(time.Minute).
		WithThreshold(48 * time.Hour)

	worker.RunOnce(context.Background())

	// The failing provider does not block the healthy one.
	assert.Equal(t, []uuid.UUID{healthy}, filterOut(renewer.renewed, failing))
	assert.Contains(t, renewer.renewed, healthy)
}

func TestRenewalWorkerStopsOnCancel(t *testing.T) {
	store := newMemChannelStore()
	renewer := &scriptedRenewer{}
	worker := NewRenewalWorker(renewer, store, nil, nil).WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func filterOut(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
