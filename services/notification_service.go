package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/models"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// NotificationTopic is the bus topic carrying participant notifications.
const NotificationTopic = "eventday.notifications"

// NotificationSink hands a notification to whoever is connected.
type NotificationSink interface {
	DeliverNotification(n models.Notification) int
}

// NotificationDispatcher queues notifications off the command path and
// publishes them to the message bus. It never blocks a caller: when the
// queue is full the notification is dropped and counted.
type NotificationDispatcher struct {
	publisher message.Publisher
	topic     string
	queue     chan models.Notification
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewNotificationDispatcher(publisher message.Publisher, topic string, queueSize int, m *metrics.Metrics, logger *slog.Logger) *NotificationDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &NotificationDispatcher{
		publisher: publisher,
		topic:     topic,
		queue:     make(chan models.Notification, queueSize),
		metrics:   m,
		logger:    logger,
	}
}

func (d *NotificationDispatcher) Notify(n models.Notification) {
	select {
	case d.queue <- n:
	default:
		d.metrics.NotificationDropped()
		d.logger.Warn("notification queue full, dropping notification",
			slog.String("notification_id", n.ID),
			slog.Int("event_id", n.EventID),
			slog.String("kind", string(n.Kind)))
	}
}

// Run publishes queued notifications until ctx is done.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			if err := d.publish(n); err != nil {
				d.metrics.NotificationFailed()
				d.logger.Error("failed to publish notification",
					slog.String("notification_id", n.ID),
					slog.Int("event_id", n.EventID),
					slog.Any("error", err))
				continue
			}
			d.metrics.NotificationPublished()
		}
	}
}

func (d *NotificationDispatcher) publish(n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(n.Kind))
	msg.Metadata.Set("event_id", fmt.Sprint(n.EventID))
	return d.publisher.Publish(d.topic, msg)
}

// NewNotificationRouter consumes notifications from the bus and delivers
// them to the sink. Undecodable messages are logged and acknowledged.
func NewNotificationRouter(subscriber message.Subscriber, topic string, sink NotificationSink, logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification router: %w", err)
	}

	router.AddNoPublisherHandler("deliver_notifications", topic, subscriber, func(msg *message.Message) error {
		var n models.Notification
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			logger.Error("discarding malformed notification",
				slog.String("message_uuid", msg.UUID), slog.Any("error", err))
			return nil
		}
		delivered := sink.DeliverNotification(n)
		logger.Debug("notification delivered",
			slog.String("notification_id", n.ID),
			slog.String("kind", string(n.Kind)),
			slog.Int("viewers", delivered))
		return nil
	})
	return router, nil
}

func newNotificationID() string {
	return uuid.NewString()
}
