// Package metrics holds the Prometheus instruments for workflow runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the planner and the daily job.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec   // Workflow runs by terminal phase
	PhaseDuration       *prometheus.HistogramVec // Seconds spent per phase
	ContributorFailures *prometheus.CounterVec   // Failed search/review/research contributors
	EventsFound         prometheus.Counter       // Unique events found by search
	DeliveriesTotal     *prometheus.CounterVec   // Digest deliveries by outcome
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventscout_workflow_runs_total",
			Help: "Workflow runs by terminal phase",
		}, []string{"phase"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventscout_phase_duration_seconds",
			Help:    "Time spent in each planning phase",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"phase"}),
		ContributorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventscout_contributor_failures_total",
			Help: "Search sources, review agents and research chains that failed",
		}, []string{"kind"}),
		EventsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventscout_events_found_total",
			Help: "Unique events found across runs",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventscout_deliveries_total",
			Help: "Digest deliveries by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.RunsTotal, m.PhaseDuration, m.ContributorFailures, m.EventsFound, m.DeliveriesTotal)
	return m
}

// ObservePhase records seconds spent in phase. Safe on a nil receiver.
func (m *Metrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RunFinished counts a run ending in phase. Safe on a nil receiver.
func (m *Metrics) RunFinished(phase string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(phase).Inc()
}

// Failures counts n failed contributors of kind. Safe on a nil receiver.
func (m *Metrics) Failures(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ContributorFailures.WithLabelValues(kind).Add(float64(n))
}

// Found counts n unique events. Safe on a nil receiver.
func (m *Metrics) Found(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsFound.Add(float64(n))
}

// Delivered counts one delivery attempt. Safe on a nil receiver.
func (m *Metrics) Delivered(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
}
