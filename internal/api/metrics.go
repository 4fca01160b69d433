package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records outbound calls to the posting service.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postdeck_api_requests_total",
			Help: "Requests sent to the posting service.",
		}, []string{"method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postdeck_api_request_duration_seconds",
			Help:    "Latency of requests to the posting service.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// observe records one call. status 0 means a transport error.
func (m *Metrics) observe(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, endpoint, label).Inc()
	m.duration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
