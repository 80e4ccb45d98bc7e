// Package metrics provides Prometheus collectors for the detection engine.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains all Prometheus metrics for detection jobs.
type DetectorMetrics struct {
	FramesProcessed   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	Incidents         *prometheus.CounterVec
	DebounceSkips     *prometheus.CounterVec
	PersistErrors     *prometheus.CounterVec
	JobRetries        *prometheus.CounterVec
	ActiveJobs        prometheus.Gauge
}

// NewDetectorMetrics creates and registers detector metrics.
func NewDetectorMetrics(registry prometheus.Registerer) (*DetectorMetrics, error) {
	m := &DetectorMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.FramesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yardwatch_frames_processed_total",
		Help: "Frames read and passed to inference",
	}, []string{"kind"})

	m.InferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yardwatch_inference_duration_seconds",
		Help:    "Model invocation latency per frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"kind"})

	m.Incidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yardwatch_incidents_total",
		Help: "Incidents persisted",
	}, []string{"kind", "class"})

	m.DebounceSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yardwatch_debounce_skips_total",
		Help: "Events suppressed inside the debounce window",
	}, []string{"kind"})

	m.PersistErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yardwatch_persist_errors_total",
		Help: "Incident writes that failed",
	}, []string{"kind"})

	m.JobRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yardwatch_job_retries_total",
		Help: "Detection jobs that failed and were scheduled for retry",
	}, []string{"kind", "reason"})

	m.ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yardwatch_active_jobs",
		Help: "Detection jobs currently running",
	})
}

// Nil-safe helpers so components can run without metrics.

func (m *DetectorMetrics) FrameProcessed(kind string) {
	if m != nil {
		m.FramesProcessed.WithLabelValues(kind).Inc()
	}
}

func (m *DetectorMetrics) ObserveInference(kind string, d time.Duration) {
	if m != nil {
		m.InferenceDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *DetectorMetrics) IncidentStored(kind, class string) {
	if m != nil {
		m.Incidents.WithLabelValues(kind, class).Inc()
	}
}

func (m *DetectorMetrics) DebounceSkipped(kind string) {
	if m != nil {
		m.DebounceSkips.WithLabelValues(kind).Inc()
	}
}

func (m *DetectorMetrics) PersistFailed(kind string) {
	if m != nil {
		m.PersistErrors.WithLabelValues(kind).Inc()
	}
}

func (m *DetectorMetrics) JobRetried(kind, reason string) {
	if m != nil {
		m.JobRetries.WithLabelValues(kind, reason).Inc()
	}
}

// JobStarted increments the active gauge and returns the matching decrement.
func (m *DetectorMetrics) JobStarted() (done func()) {
	if m == nil {
		return func() {}
	}
	m.ActiveJobs.Inc()
	return m.ActiveJobs.Dec
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesProcessed.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.Incidents.Describe(ch)
	m.DebounceSkips.Describe(ch)
	m.PersistErrors.Describe(ch)
	m.JobRetries.Describe(ch)
	ch <- m.ActiveJobs.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesProcessed.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.Incidents.Collect(ch)
	m.DebounceSkips.Collect(ch)
	m.PersistErrors.Collect(ch)
	m.JobRetries.Collect(ch)
	ch <- m.ActiveJobs
}
