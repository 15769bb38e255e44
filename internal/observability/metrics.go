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
			Name: "oarchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oarchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "oarchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oarchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	syncChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oarchat_sync_chunks_total",
			Help: "Total number of delta sync chunks sent, per stream.",
		},
		[]string{"stream"},
	)
	syncAckTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oarchat_sync_ack_timeouts_total",
			Help: "Total number of sync chunks whose acknowledgment timed out.",
		},
		[]string{"stream"},
	)
	deliveryResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oarchat_delivery_results_total",
			Help: "Per-recipient message delivery outcomes.",
		},
		[]string{"result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oarchat_amqp_publish_errors_total",
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
		syncChunksTotal,
		syncAckTimeoutsTotal,
		deliveryResultsTotal,
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

func IncSyncChunk(stream string) {
	syncChunksTotal.WithLabelValues(stream).Inc()
}

func IncSyncAckTimeout(stream string) {
	syncAckTimeoutsTotal.WithLabelValues(stream).Inc()
}

func IncDeliveryResult(result string) {
	deliveryResultsTotal.WithLabelValues(result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
