package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	chatConnectionsActive         prometheus.Gauge
	chatMessagesSentTotal         *prometheus.CounterVec
	chatsCreatedTotal             prometheus.Counter
	notificationsPublishedTotal   *prometheus.CounterVec
	notificationSubscribersActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		chatConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of live chat websocket connections.",
		})

		chatMessagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total chat messages fanned out, labelled by content type.",
		}, []string{"type"})

		chatsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chats_created_total",
			Help: "Total chat rooms created on first contact.",
		})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total notifications published, labelled by type.",
		}, []string{"type"})

		notificationSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_subscribers_active",
			Help: "Number of live notification stream subscriptions.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			chatConnectionsActive,
			chatMessagesSentTotal,
			chatsCreatedTotal,
			notificationsPublishedTotal,
			notificationSubscribersActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ChatConnectionsActive exposes the live websocket connection gauge.
func ChatConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return chatConnectionsActive
}

// ChatMessagesSentTotal exposes the message fan-out counter.
func ChatMessagesSentTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSentTotal
}

// ChatsCreatedTotal exposes the room creation counter.
func ChatsCreatedTotal() prometheus.Counter {
	RegisterMetrics()
	return chatsCreatedTotal
}

// NotificationsPublishedTotal exposes the notification publish counter.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// NotificationSubscribersActive exposes the live subscription gauge.
func NotificationSubscribersActive() prometheus.Gauge {
	RegisterMetrics()
	return notificationSubscribersActive
}
