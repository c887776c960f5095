package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fara-hq/governor/pkg/config"
)

// RequestMetrics tracks HTTP transport metrics.
//
// Metrics:
//   - fara_governor_requests_total: request count by method, path, status
//   - fara_governor_request_duration_seconds: request latency histogram
//   - fara_governor_errors_total: error responses by wire error code
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"method", "path"},
		),

		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of error responses by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.errorsTotal,
	)
	return rm
}

// RecordRequest records one served request.
func (rm *RequestMetrics) RecordRequest(method, path string, status int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError records one error response.
func (rm *RequestMetrics) RecordError(code string) {
	rm.errorsTotal.WithLabelValues(code).Inc()
}
