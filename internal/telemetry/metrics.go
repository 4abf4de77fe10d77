// Package telemetry provides run metrics and tracing.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "github_activity_report"

// RunMetrics collects the metrics of one run. They are written once, as a
// node-exporter textfile, when the run ends.
type RunMetrics struct {
	registry      *prometheus.Registry
	records       *prometheus.CounterVec
	dropped       prometheus.Counter
	fetchFailures *prometheus.CounterVec
	steps         *prometheus.GaugeVec
	duration      prometheus.Gauge
	lastRun       prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Normalized activity records per repository and kind.",
		}, []string{"repository", "kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_records_total",
			Help:      "Payloads dropped during normalization.",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Repositories whose collection failed.",
		}, []string{"repository"}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "step_status",
			Help:      "1 for the final status of each pipeline step.",
		}, []string{"step", "status"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}
	m.registry.MustRegister(m.records, m.dropped, m.fetchFailures, m.steps, m.duration, m.lastRun)
	return m
}

func (m *RunMetrics) AddRecords(repository, kind string, n int) {
	m.records.WithLabelValues(repository, kind).Add(float64(n))
}

func (m *RunMetrics) AddDropped(n int) {
	m.dropped.Add(float64(n))
}

func (m *RunMetrics) FetchFailed(repository string) {
	m.fetchFailures.WithLabelValues(repository).Inc()
}

func (m *RunMetrics) StepFinished(step, status string) {
	m.steps.WithLabelValues(step, status).Set(1)
}

// Finish records the run duration and completion time.
func (m *RunMetrics) Finish(started, finished time.Time) {
	m.duration.Set(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
