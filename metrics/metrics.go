package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventday"

// Metrics groups the collectors of the engine. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Commands             *prometheus.CounterVec
	Broadcasts           *prometheus.CounterVec
	ViewersDropped       prometheus.Counter
	Viewers              *prometheus.GaugeVec
	QueueLength          *prometheus.GaugeVec
	NotificationsDropped prometheus.Counter
	NotificationsFailed  prometheus.Counter
	NotificationsSent    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Event-day commands handled, by command and outcome.",
		}, []string{"command", "outcome"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_events_total",
			Help:      "Broadcast events published, by kind.",
		}, []string{"kind"}),
		ViewersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewers_dropped_total",
			Help:      "Viewers disconnected because their outbox was full.",
		}),
		Viewers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Connected viewers, by authentication.",
		}, []string{"authenticated"}),
		QueueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_queue_length",
			Help:      "Matches waiting for a court, by event.",
		}, []string{"event_id"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the dispatch queue was full.",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications the publisher rejected.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Notifications handed to the publisher.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Commands, m.Broadcasts, m.ViewersDropped, m.Viewers, m.QueueLength,
		m.NotificationsDropped, m.NotificationsFailed, m.NotificationsSent,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Command(name, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Broadcast(kind string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(kind).Inc()
}

func (m *Metrics) ViewerDropped() {
	if m == nil {
		return
	}
	m.ViewersDropped.Inc()
}

func (m *Metrics) ViewerJoined(authenticated bool) {
	if m == nil {
		return
	}
	m.Viewers.WithLabelValues(boolLabel(authenticated)).Inc()
}

func (m *Metrics) ViewerLeft(authenticated bool) {
	if m == nil {
		return
	}
	m.Viewers.WithLabelValues(boolLabel(authenticated)).Dec()
}

func (m *Metrics) SetQueueLength(eventID string, n int) {
	if m == nil {
		return
	}
	m.QueueLength.WithLabelValues(eventID).Set(float64(n))
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

func (m *Metrics) NotificationPublished() {
	if m == nil {
		return
	}
	m.NotificationsSent.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
