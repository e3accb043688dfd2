// Package metrics holds the Prometheus collectors for the workflow engine,
// the sweep and inventory validation. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sat"

type Metrics struct {
	transitionsTotal  *prometheus.CounterVec
	casConflictsTotal prometheus.Counter
	sweepRunsTotal    *prometheus.CounterVec
	sweepAudits       *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	validationsTotal  *prometheus.CounterVec
	parseWarnings     prometheus.Counter
}

// New creates the collectors and registers them with reg. It panics on
// duplicate registration, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_transitions_total",
				Help:      "Applied audit state transitions by from, to and cause kind.",
			},
			[]string{"from", "to", "kind"},
		),
		casConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_transition_conflicts_total",
			Help:      "Transitions that lost the compare-and-swap on the audit state.",
		}),
		sweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Scheduled verification sweeps by outcome.",
			},
			[]string{"status"},
		),
		sweepAudits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_audits_total",
				Help:      "Audits visited by the sweep by result.",
			},
			[]string{"result"},
		),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one verification sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inventory_validations_total",
				Help:      "Inventory rows validated by verdict.",
			},
			[]string{"verdict"},
		),
		parseWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_parse_warnings_total",
			Help:      "Inventory fields the normalizer could not resolve.",
		}),
	}
	reg.MustRegister(
		m.transitionsTotal,
		m.casConflictsTotal,
		m.sweepRunsTotal,
		m.sweepAudits,
		m.sweepDuration,
		m.validationsTotal,
		m.parseWarnings,
	)
	return m
}

func (m *Metrics) Transition(from, to, kind string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, kind).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.casConflictsTotal.Inc()
}

// Sweep records one finished sweep. err marks the run as failed; the audit
// counters are recorded either way.
func (m *Metrics) Sweep(checked, transitioned, failed int, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.sweepRunsTotal.WithLabelValues(status).Inc()
	m.sweepAudits.WithLabelValues("checked").Add(float64(checked))
	m.sweepAudits.WithLabelValues("transitioned").Add(float64(transitioned))
	m.sweepAudits.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) Validation(compliant bool, warnings int) {
	if m == nil {
		return
	}
	verdict := "non_compliant"
	if compliant {
		verdict = "compliant"
	}
	m.validationsTotal.WithLabelValues(verdict).Inc()
	m.parseWarnings.Add(float64(warnings))
}
