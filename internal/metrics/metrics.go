package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "campuschat",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campuschat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "chats",
			Name:      "messages_sent_total",
			Help:      "Messages written, by message type.",
		},
		[]string{"type"},
	)

	callTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "calls",
			Name:      "transitions_total",
			Help:      "Call status transitions, by target status.",
		},
		[]string{"status"},
	)

	catalogLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "catalog",
			Name:      "lookups_total",
			Help:      "Catalog reads by kind and result (hit, miss, error).",
		},
		[]string{"kind", "result"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "campuschat",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open websocket connections.",
		},
	)

	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "realtime",
			Name:      "dropped_events_total",
			Help:      "Realtime events discarded because a subscriber fell behind.",
		},
		[]string{"source"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campuschat",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campuschat",
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		messagesSent,
		callTransitions,
		catalogLookups,
		wsConnections,
		droppedEvents,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordMessageSent(messageType string) {
	messagesSent.WithLabelValues(messageType).Inc()
}

func RecordCallTransition(status string) {
	callTransitions.WithLabelValues(status).Inc()
}

// RecordCatalogLookup counts a catalog read; result is hit, miss or error.
func RecordCatalogLookup(kind, result string) {
	catalogLookups.WithLabelValues(kind, result).Inc()
}

func WebsocketConnected()    { wsConnections.Inc() }
func WebsocketDisconnected() { wsConnections.Dec() }

// RecordDroppedEvent counts an event lost by source (bus or client).
func RecordDroppedEvent(source string) {
	droppedEvents.WithLabelValues(source).Inc()
}

// RecordJobRun records metrics for a scheduled job run.
func RecordJobRun(job string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
