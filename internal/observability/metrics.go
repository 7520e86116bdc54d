// Package observability exports run results and remote table traffic as
// Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkilian/kvmix/internal/workload"
)

// RunMetrics holds the gauges describing one completed run. Each RunMetrics
// owns its registry so a textfile dump contains only this run.
type RunMetrics struct {
	registry *prometheus.Registry

	totalOps       prometheus.Gauge
	prefillElems   prometheus.Gauge
	elapsed        prometheus.Gauge
	prefillElapsed prometheus.Gauge
	throughput     prometheus.Gauge
	threads        prometheus.Gauge
	calls          *prometheus.GaugeVec
	successes      *prometheus.GaugeVec
	upsertInserts  prometheus.Gauge
}

// NewRunMetrics creates the run gauges. constLabels are attached to every
// series, typically the table kind and key type.
func NewRunMetrics(constLabels prometheus.Labels) *RunMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "kvmix",
			Subsystem:   "run",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	opGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "kvmix",
			Subsystem:   "run",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, []string{"op"})
	}

	m := &RunMetrics{
		registry:       prometheus.NewRegistry(),
		totalOps:       gauge("total_ops", "Operations executed in the timed phase."),
		prefillElems:   gauge("prefill_elements", "Elements inserted before timing started."),
		elapsed:        gauge("elapsed_seconds", "Duration of the timed phase."),
		prefillElapsed: gauge("prefill_elapsed_seconds", "Duration of the prefill phase."),
		throughput:     gauge("throughput_ops_per_second", "Timed operations per second."),
		threads:        gauge("threads", "Worker goroutines per phase."),
		calls:          opGauge("op_calls", "Calls per operation kind in the timed phase."),
		successes:      opGauge("op_successes", "Calls per operation kind that reported success."),
		upsertInserts:  gauge("upsert_inserts", "Upserts that took the insert branch."),
	}
	m.registry.MustRegister(m.totalOps, m.prefillElems, m.elapsed, m.prefillElapsed,
		m.throughput, m.threads, m.calls, m.successes, m.upsertInserts)
	return m
}

// Record sets every gauge from res.
func (m *RunMetrics) Record(res *workload.Result) {
	m.totalOps.Set(float64(res.TotalOps))
	m.prefillElems.Set(float64(res.PrefillElems))
	m.elapsed.Set(res.Elapsed.Seconds())
	m.prefillElapsed.Set(res.PrefillElapsed.Seconds())
	m.throughput.Set(res.Throughput)
	m.threads.Set(float64(res.Config.Threads))
	m.upsertInserts.Set(float64(res.UpsertInserts))
	for _, k := range workload.OpKinds {
		m.calls.WithLabelValues(k.String()).Set(float64(res.Stats[k].Calls))
		m.successes.WithLabelValues(k.String()).Set(float64(res.Stats[k].Successes))
	}
}

// Registry returns the registry holding the run gauges.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the gauges in the Prometheus text format, for the node
// exporter textfile collector.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// ServerMetrics counts and times requests served by the remote table.
type ServerMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// NewServerMetrics creates the server metrics and registers them with reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvmix",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Table requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvmix",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent in the table per request.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12), // 1µs to ~4s
		}, []string{"op"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

// Observe records one request. err takes precedence over ok.
func (m *ServerMetrics) Observe(op string, ok bool, err error, d time.Duration) {
	outcome := OutcomeFailure
	switch {
	case err != nil:
		outcome = OutcomeError
	case ok:
		outcome = OutcomeSuccess
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}
