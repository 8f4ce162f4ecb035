// Package metrics records a run as Prometheus metrics and writes them in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stackvity/tex-joiner/pkg/reflow"
)

const namespace = "texjoin"

// Recorder implements reflow.Hooks and turns run events into metrics.
// Each Recorder owns its registry, so several runs in one process do not collide.
type Recorder struct {
	registry *prometheus.Registry

	discovered   prometheus.Counter
	files        *prometheus.CounterVec
	fileDuration prometheus.Histogram
	joins        prometheus.Gauge
	runDuration  prometheus.Gauge
	lastRun      prometheus.Gauge
	fatal        prometheus.Gauge
}

var _ reflow.Hooks = (*Recorder)(nil)

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_discovered_total",
			Help: "Documents accepted by the walker.",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_total",
			Help: "Documents by final status.",
		}, []string{"status"}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "file_duration_seconds",
			Help:    "Time spent processing one document.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		joins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "joins",
			Help: "Line joins performed in the last run.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		fatal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_fatal",
			Help: "1 if the last run stopped on a fatal error.",
		}),
	}
	r.registry.MustRegister(r.discovered, r.files, r.fileDuration, r.joins, r.runDuration, r.lastRun, r.fatal)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) OnFileDiscovered(string) error {
	r.discovered.Inc()
	return nil
}

func (r *Recorder) OnFileStatusUpdate(_ string, status reflow.Status, _ string, duration time.Duration) error {
	switch status {
	case reflow.StatusPending, reflow.StatusProcessing:
		return nil
	}
	r.files.WithLabelValues(string(status)).Inc()
	if duration > 0 {
		r.fileDuration.Observe(duration.Seconds())
	}
	return nil
}

func (r *Recorder) OnRunComplete(report reflow.Report) error {
	r.joins.Set(float64(report.Summary.TotalJoins))
	r.runDuration.Set(report.Summary.DurationSeconds)
	r.lastRun.Set(float64(report.Summary.Timestamp.Unix()))
	if report.Summary.FatalErrorOccurred {
		r.fatal.Set(1)
	} else {
		r.fatal.Set(0)
	}
	return nil
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
