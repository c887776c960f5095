package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"fara-hq/governor/pkg/config"
)

// EventMetrics tracks the audit event stream.
//
// Metrics:
//   - fara_governor_events_emitted_total: emitted events by type
//   - fara_governor_event_subscribers: live stream subscribers
type EventMetrics struct {
	emittedTotal *prometheus.CounterVec
	subscribers  prometheus.Gauge
}

// NewEventMetrics creates and registers event metrics.
func NewEventMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EventMetrics {
	em := &EventMetrics{
		emittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_emitted_total",
				Help:      "Total number of audit events emitted by type",
			},
			[]string{"event_type"},
		),

		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "event_subscribers",
				Help:      "Number of live event stream subscribers",
			},
		),
	}

	registry.MustRegister(em.emittedTotal, em.subscribers)
	return em
}

// RecordEmitted records one emitted event.
func (em *EventMetrics) RecordEmitted(eventType string) {
	em.emittedTotal.WithLabelValues(eventType).Inc()
}

// SetSubscribers updates the subscriber gauge.
func (em *EventMetrics) SetSubscribers(n int) {
	em.subscribers.Set(float64(n))
}
