// Package metrics exposes Prometheus collectors for goal executions.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "goalgate"

// Collectors groups every metric the engine records. All methods are safe on
// a nil receiver so callers can run without metrics.
type Collectors struct {
	executions      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	gateFailures    *prometheus.CounterVec
	sourceFetches   *prometheus.CounterVec
	modelSelections *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_executions_total",
			Help:      "Goal executions by goal type and final state.",
		}, []string{"goal_type", "state"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage", "status"}),
		gateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_gate_failures_total",
			Help:      "Stage results rejected by their gate.",
		}, []string{"stage"}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_source_fetches_total",
			Help:      "Data-source fetches by type, required flag and outcome.",
		}, []string{"type", "required", "outcome"}),
		modelSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_selections_total",
			Help:      "Successful model selections by firing rule and model.",
		}, []string{"rule", "model"}),
	}

	for _, collector := range []prometheus.Collector{
		c.executions, c.stageDuration, c.gateFailures, c.sourceFetches, c.modelSelections,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collectors) ExecutionFinished(goalType, state string) {
	if c == nil {
		return
	}

	c.executions.WithLabelValues(goalType, state).Inc()
}

func (c *Collectors) StageFinished(stage, status string, duration time.Duration) {
	if c == nil {
		return
	}

	c.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

func (c *Collectors) GateFailed(stage string) {
	if c == nil {
		return
	}

	c.gateFailures.WithLabelValues(stage).Inc()
}

// SourceFetched records one data-source fetch made by the binding stage.
func (c *Collectors) SourceFetched(sourceType string, required, ok bool) {
	if c == nil {
		return
	}

	outcome := "success"
	if !ok {
		outcome = "error"
	}

	c.sourceFetches.WithLabelValues(sourceType, strconv.FormatBool(required), outcome).Inc()
}

// ModelSelected records a successful selection.
func (c *Collectors) ModelSelected(rule, modelID string) {
	if c == nil {
		return
	}

	c.modelSelections.WithLabelValues(rule, modelID).Inc()
}
