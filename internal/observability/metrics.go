package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	chatMessagesSent     *prometheus.CounterVec
	chatMessagesResynced prometheus.Counter
	chatSubscriptions    *prometheus.GaugeVec
	chatCacheWriteErrors prometheus.Counter
	chatMembershipHealed prometheus.Counter
	chatConnectionsTotal prometheus.Counter
	remindersScheduled   *prometheus.CounterVec
	remindersFired       *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	sseClientsActive     prometheus.Gauge
	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Chat messages accepted, labelled by whether the remote write succeeded.",
		}, []string{"type", "synced"})

		chatMessagesResynced = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_resynced_total",
			Help: "Unsynced chat messages delivered to the remote store by a resync pass.",
		})

		chatSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chat_subscriptions_active",
			Help: "Active chat snapshot subscriptions.",
		}, []string{"kind"})

		chatCacheWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_cache_write_errors_total",
			Help: "Best-effort local cache writes that failed.",
		})

		chatMembershipHealed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_membership_healed_total",
			Help: "Rooms whose member ids were amended after an email-only match.",
		})

		chatConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_ws_connections_total",
			Help: "Total chat websocket connections accepted.",
		})

		remindersScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_reminders_scheduled_total",
			Help: "Trip reminder timers registered.",
		}, []string{"type"})

		remindersFired = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_reminders_fired_total",
			Help: "Trip reminder timers that fired.",
		}, []string{"type"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications published to users.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_sse_clients_active",
			Help: "Connected notification stream clients.",
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_uploads_total",
			Help: "Accepted chat image uploads.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_uploads_rejected_total",
			Help: "Rejected chat image uploads by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_upload_latency_seconds",
			Help:    "Latency of chat image uploads.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			chatMessagesSent, chatMessagesResynced, chatSubscriptions, chatCacheWriteErrors,
			chatMembershipHealed, chatConnectionsTotal,
			remindersScheduled, remindersFired,
			notificationsTotal, sseClientsActive,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

func ChatMessagesResynced() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesResynced
}

func ChatSubscriptions() *prometheus.GaugeVec {
	RegisterMetrics()
	return chatSubscriptions
}

func ChatCacheWriteErrors() prometheus.Counter {
	RegisterMetrics()
	return chatCacheWriteErrors
}

func ChatMembershipHealed() prometheus.Counter {
	RegisterMetrics()
	return chatMembershipHealed
}

func ChatConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return chatConnectionsTotal
}

func RemindersScheduled() *prometheus.CounterVec {
	RegisterMetrics()
	return remindersScheduled
}

func RemindersFired() *prometheus.CounterVec {
	RegisterMetrics()
	return remindersFired
}

func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}
