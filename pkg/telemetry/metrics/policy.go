package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"fara-hq/governor/pkg/config"
)

// PolicyMetrics tracks the policy engine.
//
// Metrics:
//   - fara_governor_policy_evaluations_total: evaluations by decision
//   - fara_governor_policy_reloads_total: reload attempts by outcome
type PolicyMetrics struct {
	evaluationsTotal *prometheus.CounterVec
	reloadsTotal     *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_evaluations_total",
				Help:      "Total number of policy evaluations by decision",
			},
			[]string{"decision"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_reloads_total",
				Help:      "Total number of policy reload attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(pm.evaluationsTotal, pm.reloadsTotal)
	return pm
}

// RecordEvaluation records one evaluation.
func (pm *PolicyMetrics) RecordEvaluation(decision string) {
	pm.evaluationsTotal.WithLabelValues(decision).Inc()
}

// RecordReload records one reload attempt.
func (pm *PolicyMetrics) RecordReload(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	pm.reloadsTotal.WithLabelValues(outcome).Inc()
}
