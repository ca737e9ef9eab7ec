package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the engine. Register it with a prometheus registry;
// the engine tolerates a nil Metrics for tests.
type Metrics struct {
	cycles         prometheus.Counter
	cycleDuration  prometheus.Summary
	triggered      prometheus.Counter
	snapshotErrors prometheus.Counter
	evalErrors     prometheus.Counter
	conflictSkips  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "cycles_total", Help: "Number of evaluation cycles run",
		}),
		cycleDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "cycle_duration_seconds", Help: "Duration of an evaluation cycle",
		}),
		triggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "automations_triggered_total", Help: "Number of automations that fired",
		}),
		snapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "snapshot_errors_total", Help: "Number of failed owner snapshots",
		}),
		evalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "evaluation_errors_total", Help: "Number of failed trigger evaluations",
		}),
		conflictSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powersync", Subsystem: "engine",
			Name: "actions_skipped_total", Help: "Number of actions skipped by conflict resolution",
		}),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.cycles.Describe(ch)
	m.cycleDuration.Describe(ch)
	m.triggered.Describe(ch)
	m.snapshotErrors.Describe(ch)
	m.evalErrors.Describe(ch)
	m.conflictSkips.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.cycles.Collect(ch)
	m.cycleDuration.Collect(ch)
	m.triggered.Collect(ch)
	m.snapshotErrors.Collect(ch)
	m.evalErrors.Collect(ch)
	m.conflictSkips.Collect(ch)
}
