package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket transport events.",
		},
		[]string{"event"},
	)
	realtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_realtime_events_total",
			Help: "Total number of real-time chat events emitted, by event name.",
		},
		[]string{"event"},
	)
	mediaUploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_media_uploads_total",
			Help: "Total number of attachment blobs uploaded.",
		},
	)
	mediaDeleteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_media_delete_errors_total",
			Help: "Total number of blob deletions that failed and were skipped.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		realtimeEventsTotal,
		mediaUploadsTotal,
		mediaDeleteErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncRealtimeEvent(event string) {
	realtimeEventsTotal.WithLabelValues(event).Inc()
}

func AddMediaUploads(n int) {
	mediaUploadsTotal.Add(float64(n))
}

func IncMediaDeleteError() {
	mediaDeleteErrorsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
