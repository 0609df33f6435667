package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics on its own
// registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobTotal      *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	rowsRemoved   *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	sweepTotal    *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepDeleted  *prometheus.CounterVec
	activeJobs    prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder and registers its metrics, plus the
// Go runtime and process collectors, on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		jobTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_job_total",
				Help: "Total number of cleaning and preview jobs",
			},
			[]string{"kind", "format", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filecleaner_job_duration_seconds",
				Help:    "End-to-end job duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "outcome"},
		),
		phaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_phase_total",
				Help: "Total number of job phases executed",
			},
			[]string{"phase", "success"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filecleaner_phase_duration_seconds",
				Help:    "Duration of job phases in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"phase", "success"},
		),
		rowsRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_rows_removed_total",
				Help: "Rows removed by cleaning",
			},
			[]string{"reason"},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_bytes_total",
				Help: "Bytes downloaded and written",
			},
			[]string{"direction"},
		),
		sweepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_sweep_total",
				Help: "Total number of expiry sweeps",
			},
			[]string{"success"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filecleaner_sweep_duration_seconds",
				Help:    "Duration of expiry sweeps in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
		),
		sweepDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filecleaner_sweep_deleted_files_total",
				Help: "Files deleted by the expiry sweeper",
			},
			[]string{"kind"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "filecleaner_active_jobs",
				Help: "Number of jobs currently running",
			},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.jobTotal,
		r.jobDuration,
		r.phaseTotal,
		r.phaseDuration,
		r.rowsRemoved,
		r.bytesTotal,
		r.sweepTotal,
		r.sweepDuration,
		r.sweepDeleted,
		r.activeJobs,
	)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func successLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

// RecordJob records a finished job.
func (r *PrometheusRecorder) RecordJob(kind, format, outcome string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	r.jobTotal.WithLabelValues(kind, format, outcome).Inc()
	r.jobDuration.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// RecordPhase records one orchestration phase.
func (r *PrometheusRecorder) RecordPhase(phase string, success bool, duration time.Duration) {
	label := successLabel(success)
	r.phaseTotal.WithLabelValues(phase, label).Inc()
	r.phaseDuration.WithLabelValues(phase, label).Observe(duration.Seconds())
}

// RecordRowsRemoved records rows removed by cleaning.
func (r *PrometheusRecorder) RecordRowsRemoved(reason string, n int) {
	if n > 0 {
		r.rowsRemoved.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordBytes records bytes moved.
func (r *PrometheusRecorder) RecordBytes(direction string, n int64) {
	if n > 0 {
		r.bytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordSweep records a sweeper run.
func (r *PrometheusRecorder) RecordSweep(success bool, duration time.Duration, deleted map[string]int) {
	r.sweepTotal.WithLabelValues(successLabel(success)).Inc()
	r.sweepDuration.Observe(duration.Seconds())
	for kind, n := range deleted {
		if n > 0 {
			r.sweepDeleted.WithLabelValues(kind).Add(float64(n))
		}
	}
}

// IncActiveJobs increments the running job gauge.
func (r *PrometheusRecorder) IncActiveJobs() {
	r.activeJobs.Inc()
}

// DecActiveJobs decrements the running job gauge.
func (r *PrometheusRecorder) DecActiveJobs() {
	r.activeJobs.Dec()
}
