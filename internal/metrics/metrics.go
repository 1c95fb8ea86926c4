// Package metrics records step, scenario and probe outcomes as prometheus
// metrics. A run is short lived, so instead of serving them the registry is
// written to a node_exporter textfile once the run is done.
package metrics

import (
	"github.com/jakopako/sitecheckr/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sitecheckr"

// Metrics implements scenario.Recorder and probe.Observer.
type Metrics struct {
	registry        *prometheus.Registry
	stepDuration    *prometheus.HistogramVec
	scenarios       *prometheus.CounterVec
	scenarioSeconds *prometheus.HistogramVec
	probeLatency    *prometheus.HistogramVec
	probes          *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of scenario steps.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"scenario", "action", "status"}),
		scenarios: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Number of finished scenarios by status.",
		}, []string{"scenario", "status"}),
		scenarioSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Duration of whole scenarios.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"scenario"}),
		probeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Latency of http probes until the response headers arrived.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"probe"}),
		probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Number of finished probes by result.",
		}, []string{"probe", "ok"}),
	}
}

func (m *Metrics) ObserveStep(scenario string, r types.StepResult) {
	// skipped steps never ran
	if r.Status == types.StatusSkipped {
		return
	}
	m.stepDuration.WithLabelValues(scenario, string(r.Action), string(r.Status)).Observe(r.Elapsed.Seconds())
}

func (m *Metrics) ObserveScenario(r *types.ScenarioReport) {
	m.scenarios.WithLabelValues(r.Scenario, string(r.Status)).Inc()
	if !r.Finished.IsZero() && !r.Started.IsZero() {
		m.scenarioSeconds.WithLabelValues(r.Scenario).Observe(r.Finished.Sub(r.Started).Seconds())
	}
}

func (m *Metrics) ObserveProbe(r types.ProbeReport) {
	ok := "false"
	if r.OK {
		ok = "true"
	}
	m.probes.WithLabelValues(r.Name, ok).Inc()
	if r.StatusCode != 0 {
		m.probeLatency.WithLabelValues(r.Name).Observe(r.Latency.Seconds())
	}
}

// Registry exposes the underlying registry, eg. to serve it or to gather it in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes all metrics in the text exposition format to
// filename. The file is written atomically.
func (m *Metrics) WriteToTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.registry)
}
