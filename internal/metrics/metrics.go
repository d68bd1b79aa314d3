// Package metrics exposes run statistics in Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hexmirror/internal/models"
)

// Recorder owns a private registry so nothing leaks into the global one.
type Recorder struct {
	registry *prometheus.Registry

	Artifacts       *prometheus.CounterVec
	FetchAttempts   prometheus.Counter
	BytesWritten    prometheus.Counter
	ManifestEntries prometheus.Gauge
	Planned         prometheus.Gauge
	AlreadyPresent  prometheus.Gauge
	RunDuration     prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

func NewRecorder(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		Artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_total",
			Help:      "Planned artifacts by final outcome",
		}, []string{"outcome"}),
		FetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Fetch attempts including retries",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes committed to the mirror",
		}),
		ManifestEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_artifacts",
			Help:      "Artifacts in the remote manifest",
		}),
		Planned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "planned_artifacts",
			Help:      "Artifacts selected for download",
		}),
		AlreadyPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "present_artifacts",
			Help:      "Manifest artifacts already in the mirror",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run with no failures",
		}),
	}
	reg.MustRegister(r.Artifacts, r.FetchAttempts, r.BytesWritten, r.ManifestEntries,
		r.Planned, r.AlreadyPresent, r.RunDuration, r.LastSuccess)
	return r
}

// Observe records an aggregated run. It is called once per run by the
// coordinator after the pool has finished.
func (r *Recorder) Observe(manifestEntries, planned int, s models.RunSummary, elapsed time.Duration) {
	r.Artifacts.WithLabelValues(string(models.OutcomeSucceeded)).Add(float64(s.Succeeded))
	r.Artifacts.WithLabelValues(string(models.OutcomeFailed)).Add(float64(s.Failed))
	r.Artifacts.WithLabelValues(string(models.OutcomeCancelled)).Add(float64(s.Cancelled))
	r.FetchAttempts.Add(float64(s.TotalAttempts))
	r.BytesWritten.Add(float64(s.TotalBytes))
	r.ManifestEntries.Set(float64(manifestEntries))
	r.Planned.Set(float64(planned))
	r.AlreadyPresent.Set(float64(s.AlreadyPresent))
	r.RunDuration.Set(elapsed.Seconds())
	if s.OK() {
		r.LastSuccess.SetToCurrentTime()
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
