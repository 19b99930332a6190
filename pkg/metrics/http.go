package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the request counters used by the metrics middleware.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_active_connections",
		Help: "Number of requests currently being served.",
	})
	reg.MustRegister(requests, duration, inFlight)
	return &HTTPMetrics{requests: requests, duration: duration, inFlight: inFlight}
}

// Begin marks a request as in flight and returns the matching completion func.
func (h *HTTPMetrics) Begin() func(method, path string, status int, elapsed time.Duration) {
	if h == nil || h.requests == nil {
		return func(string, string, int, time.Duration) {}
	}
	h.inFlight.Inc()
	return func(method, path string, status int, elapsed time.Duration) {
		h.inFlight.Dec()
		path = normalizeLabel(path)
		h.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		h.duration.WithLabelValues(method, path).Observe(elapsed.Seconds())
	}
}
