package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"fara-hq/governor/pkg/config"
)

// ActionMetrics tracks the action lifecycle.
//
// Metrics:
//   - fara_governor_actions_total: lifecycle transitions by status, tool
//   - fara_governor_action_duration_seconds: execution durations
//   - fara_governor_store_actions: actions currently in the store
type ActionMetrics struct {
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	storedActions  prometheus.Gauge
}

// NewActionMetrics creates and registers action metrics.
func NewActionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ActionMetrics {
	am := &ActionMetrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "actions_total",
				Help:      "Total number of action lifecycle transitions",
			},
			[]string{"status", "tool"},
		),

		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "action_duration_seconds",
				Help:      "Duration of completed action executions in seconds",
				Buckets:   cfg.ActionDurationBuckets,
			},
			[]string{"tool", "operation"},
		),

		storedActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_actions",
				Help:      "Number of actions currently in the store",
			},
		),
	}

	registry.MustRegister(
		am.actionsTotal,
		am.actionDuration,
		am.storedActions,
	)
	return am
}

// RecordTransition records an action entering a status.
func (am *ActionMetrics) RecordTransition(status, tool string) {
	am.actionsTotal.WithLabelValues(status, tool).Inc()
}

// RecordDuration records one completed execution. Actions that finish
// without an executor never pass through here, so the histogram reflects
// real execution time only.
func (am *ActionMetrics) RecordDuration(tool, operation string, seconds float64) {
	am.actionDuration.WithLabelValues(tool, operation).Observe(seconds)
}

// SetStored updates the stored-action gauge.
func (am *ActionMetrics) SetStored(n int64) {
	am.storedActions.Set(float64(n))
}
