package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/Dosada05/pickleball-eventday/utils"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelSink struct {
	delivered chan models.Notification
}

func (s *channelSink) DeliverNotification(n models.Notification) int {
	s.delivered <- n
	return 1
}

func TestNotificationDispatcher_DeliversThroughBus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	sink := &channelSink{delivered: make(chan models.Notification, 4)}
	router, err := NewNotificationRouter(pubSub, NotificationTopic, sink, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	m := metrics.New()
	dispatcher := NewNotificationDispatcher(pubSub, NotificationTopic, 4, m, logger)
	go dispatcher.Run(ctx)

	sent := models.Notification{
		ID:        newNotificationID(),
		EventID:   testEventID,
		MatchID:   utils.Ptr(201),
		UnitID:    utils.Ptr(1),
		UserIDs:   []int{userOf(1)},
		Kind:      models.NotifyCourtAssigned,
		Message:   gofakeit.Sentence(6),
		CreatedAt: time.Date(2026, 5, 16, 9, 30, 0, 0, time.UTC),
	}
	dispatcher.Notify(sent)

	select {
	case got := <-sink.delivered:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.UserIDs, got.UserIDs)
		assert.Equal(t, sent.Message, got.Message)
		assert.True(t, sent.CreatedAt.Equal(got.CreatedAt))
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not delivered")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsSent))
}

func TestNotificationDispatcher_DropsWhenFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	m := metrics.New()
	dispatcher := NewNotificationDispatcher(pubSub, NotificationTopic, 1, m, logger)

	done := make(chan struct{})
	go func() {
		dispatcher.Notify(models.Notification{ID: "first", EventID: testEventID})
		dispatcher.Notify(models.Notification{ID: "second", EventID: testEventID})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsDropped))
}
