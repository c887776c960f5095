package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fara-hq/governor/pkg/config"
)

// Collector is the orchestrator for all Prometheus metrics in the
// governor. It owns the registry, registers every metric family at
// construction, and offers one recording method per observation so callers
// never touch prometheus types directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	request *RequestMetrics
	actions *ActionMetrics
	policy  *PolicyMetrics
	events  *EventMetrics
}

// NewCollector creates a metrics collector. If registry is nil a private
// registry is created, keeping governor metrics separate from anything the
// process default registry accumulates.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "fara"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "governor"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5}
	}
	if len(cfg.ActionDurationBuckets) == 0 {
		// Executions range from sub-second commands to long jobs.
		cfg.ActionDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}
	c.request = NewRequestMetrics(cfg, registry)
	c.actions = NewActionMetrics(cfg, registry)
	c.policy = NewPolicyMetrics(cfg, registry)
	c.events = NewEventMetrics(cfg, registry)
	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.request.RecordRequest(method, path, status, duration)
}

// RecordError records an error response by its wire code.
func (c *Collector) RecordError(code string) {
	if !c.config.Enabled {
		return
	}
	c.request.RecordError(code)
}

// PolicyEvaluated records one policy evaluation by decision.
func (c *Collector) PolicyEvaluated(decision string) {
	if !c.config.Enabled {
		return
	}
	c.policy.RecordEvaluation(decision)
}

// PolicyReloaded records a policy reload attempt.
func (c *Collector) PolicyReloaded(err error) {
	if !c.config.Enabled {
		return
	}
	c.policy.RecordReload(err == nil)
}

// ActionTransitioned records an action reaching a new status.
func (c *Collector) ActionTransitioned(status, tool string) {
	if !c.config.Enabled {
		return
	}
	c.actions.RecordTransition(status, tool)
}

// ExecutionFinished records the duration of one completed execution.
func (c *Collector) ExecutionFinished(tool, operation string, seconds float64) {
	if !c.config.Enabled {
		return
	}
	c.actions.RecordDuration(tool, operation, seconds)
}

// EventEmitted records one audit event by type.
func (c *Collector) EventEmitted(eventType string) {
	if !c.config.Enabled {
		return
	}
	c.events.RecordEmitted(eventType)
}

// SetEventSubscribers updates the live-subscriber gauge.
func (c *Collector) SetEventSubscribers(n int) {
	if !c.config.Enabled {
		return
	}
	c.events.SetSubscribers(n)
}

// SetStoredActions updates the stored-action gauge.
func (c *Collector) SetStoredActions(n int64) {
	if !c.config.Enabled {
		return
	}
	c.actions.SetStored(n)
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
