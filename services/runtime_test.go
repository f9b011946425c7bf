package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore holds LoadEvent of one event until release is closed.
type gatedStore struct {
	*repositories.MemoryStore
	eventID  int
	loading  chan struct{}
	release  chan struct{}
	announce sync.Once
}

func (s *gatedStore) LoadEvent(ctx context.Context, eventID int) (*repositories.EventData, error) {
	if eventID == s.eventID {
		s.announce.Do(func() { close(s.loading) })
		<-s.release
	}
	return s.MemoryStore.LoadEvent(ctx, eventID)
}

func TestRuntime_SlowEventLoadDoesNotBlockOtherEvents(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		MemoryStore: repositories.NewMemoryStore(),
		eventID:     2,
		loading:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	store.Seed(eventData(models.EventStatusRegistrationClosed, models.SchedulingPolicy{}, 2, 1))
	store.Seed(&repositories.EventData{
		Event: &models.Event{ID: 2, Name: "Late Registration Cup", Status: models.EventStatusRegistrationClosed},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt := NewRuntime(store, &recordingHub{}, &recordingNotifier{}, metrics.New(), logger)
	events := NewEventService(rt, noPresence{}, logger)

	_, err := events.GetSnapshot(ctx, testEventID, nil)
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, err := events.GetSnapshot(ctx, 2, nil)
		slowDone <- err
	}()
	<-store.loading

	done := make(chan error, 1)
	go func() {
		_, err := events.SetStatus(ctx, testEventID, models.EventStatusRunning)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(store.release)
		t.Fatal("command on a loaded event waited for another event's load")
	}

	close(store.release)
	require.NoError(t, <-slowDone)

	a, err := rt.event(ctx, 2)
	require.NoError(t, err)
	b, err := rt.event(ctx, 2)
	require.NoError(t, err)
	assert.Same(t, a, b)
}
