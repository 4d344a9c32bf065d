package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors; /metrics serves only these.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vivenza",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vivenza",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vivenza",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vivenza",
			Subsystem: "chat",
			Name:      "messages_sent_total",
			Help:      "Total number of messages persisted.",
		},
	)

	conversationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vivenza",
			Subsystem: "chat",
			Name:      "conversations_created_total",
			Help:      "Total number of conversations created.",
		},
	)

	storiesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vivenza",
			Subsystem: "stories",
			Name:      "created_total",
			Help:      "Total number of stories created.",
		},
	)

	storiesReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vivenza",
			Subsystem: "stories",
			Name:      "reaped_total",
			Help:      "Total number of expired story rows deleted by the reaper.",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vivenza",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Current number of open websocket connections.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		messagesSent,
		conversationsCreated,
		storiesCreated,
		storiesReaped,
		wsConnections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics labelled by the matched route, so path
// parameters do not explode label cardinality.
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
		method := strings.ToUpper(c.Request.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func MessageSent() {
	messagesSent.Inc()
}

func ConversationCreated() {
	conversationsCreated.Inc()
}

func StoryCreated() {
	storiesCreated.Inc()
}

func StoriesReaped(n int64) {
	if n > 0 {
		storiesReaped.Add(float64(n))
	}
}

func ConnectionOpened() {
	wsConnections.Inc()
}

func ConnectionClosed() {
	wsConnections.Dec()
}
