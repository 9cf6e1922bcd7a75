package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_notifications_created_total",
			Help: "Total notifications created by type and channel",
		},
		[]string{"notification_type", "channel"},
	)

	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_delivery_attempts_total",
			Help: "Total delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	sweepProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_sweep_processed_total",
			Help: "Pending notifications picked up by the channel sweeps",
		},
		[]string{"channel"},
	)

	remindersDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_reminders_dispatched_total",
			Help: "Event-reminder notifications dispatched",
		},
	)

	queueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_queue_messages_total",
			Help: "Queue messages consumed by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_db_connections_active",
			Help: "Active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationCreated records a notification creation
func RecordNotificationCreated(notificationType, channel string) {
	notificationsCreated.WithLabelValues(notificationType, channel).Inc()
}

// RecordDeliveryAttempt records one delivery attempt outcome
func RecordDeliveryAttempt(channel, status string) {
	deliveryAttempts.WithLabelValues(channel, status).Inc()
}

// RecordSweepProcessed records notifications picked up by a sweep
func RecordSweepProcessed(channel string, count int) {
	sweepProcessed.WithLabelValues(channel).Add(float64(count))
}

// RecordRemindersDispatched records dispatched event reminders
func RecordRemindersDispatched(count int) {
	remindersDispatched.Add(float64(count))
}

// RecordQueueMessage records a consumed queue message outcome
func RecordQueueMessage(msgType, outcome string) {
	queueMessages.WithLabelValues(msgType, outcome).Inc()
}

// SetDBConnections sets active database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
