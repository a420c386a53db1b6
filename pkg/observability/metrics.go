package observability

import (
	"context"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	phases   *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_runs_total",
				Help: "Finished runs by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cadence_run_duration_seconds",
				Help:    "Wall time of a run from loading to release",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		phases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_phase_total",
				Help: "Phases entered",
			},
			[]string{"phase"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_errors_total",
				Help: "Classified run failures by kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.runs, m.duration, m.phases, m.errors)
	return m
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhase: func(_ context.Context, e *domain.RunEvent) {
			m.phases.WithLabelValues(string(e.Phase)).Inc()
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEndEvent) {
			m.runs.WithLabelValues(string(e.Outcome)).Inc()
			m.duration.Observe(e.Duration.Seconds())
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			kind := string(e.Kind)
			if kind == "" {
				kind = "unclassified"
			}
			m.errors.WithLabelValues(kind).Inc()
		},
	}
}
