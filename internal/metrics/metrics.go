// Package metrics exposes Prometheus counters for the nomination workflow
// and for roles handed out by the host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements workflow.Recorder.
type Metrics struct {
	created  prometheus.Counter
	resolved *prometheus.CounterVec
	errors   *prometheus.CounterVec
	granted  prometheus.Counter
	skipped  prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_nominations_created_total",
			Help: "Nominations created.",
		}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_nominations_resolved_total",
			Help: "Nominations resolved, by decision.",
		}, []string{"decision"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "award_workflow_errors_total",
			Help: "Rejected or failed workflow calls, by operation and error kind.",
		}, []string{"op", "kind"}),
		granted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_roles_granted_total",
			Help: "Role grants applied to members.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "award_roles_skipped_total",
			Help: "Role grants skipped because the member could not be resolved.",
		}),
	}
	reg.MustRegister(m.created, m.resolved, m.errors, m.granted, m.skipped)
	return m
}

func (m *Metrics) NominationCreated() {
	m.created.Inc()
}

func (m *Metrics) NominationResolved(decision string) {
	m.resolved.WithLabelValues(decision).Inc()
}

func (m *Metrics) WorkflowError(op, kind string) {
	m.errors.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) RoleGranted() {
	m.granted.Inc()
}

func (m *Metrics) RoleSkipped() {
	m.skipped.Inc()
}
