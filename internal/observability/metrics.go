package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canterm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "canterm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	busFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canterm",
			Subsystem: "bus",
			Name:      "frames_total",
			Help:      "Frames moved through the virtual bus, by direction.",
		},
		[]string{"bus", "direction"},
	)
	busRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canterm",
			Subsystem: "bus",
			Name:      "frames_rejected_total",
			Help:      "Frames rejected at the transmit or decode boundary.",
		},
		[]string{"bus", "reason"},
	)
	busClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "canterm",
			Subsystem: "bus",
			Name:      "attached_clients",
			Help:      "Clients currently attached to the virtual bus.",
		},
		[]string{"bus"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, busFrames, busRejected, busClients)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordBusFrame(busName, direction string) {
	RegisterMetrics()
	busFrames.WithLabelValues(busName, direction).Inc()
}

func RecordBusReject(busName, reason string) {
	RegisterMetrics()
	busRejected.WithLabelValues(busName, reason).Inc()
}

func SetAttachedClients(busName string, n int) {
	RegisterMetrics()
	busClients.WithLabelValues(busName).Set(float64(n))
}
