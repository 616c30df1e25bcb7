package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polarfoxDev/lambder/internal/model"
)

// Recorder collects the outcome of runs for the node_exporter textfile collector
type Recorder struct {
	registry *prometheus.Registry

	imagesDeleted prometheus.Counter
	imagesCreated prometheus.Counter
	failures      *prometheus.CounterVec
	unresolved    *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	lastDuration  prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		imagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lambder",
			Name:      "images_deleted_total",
			Help:      "Backup images destroyed by the prune phase.",
		}),
		imagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lambder",
			Name:      "images_created_total",
			Help:      "Backup images created.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lambder",
			Name:      "item_failures_total",
			Help:      "Per-item failures by kind (prune, create, list).",
		}, []string{"kind"}),
		unresolved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lambder",
			Name:      "unresolved_images",
			Help:      "Tagged images that could not be attributed to a backup source, per region.",
		}, []string{"region"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lambder",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run completed.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lambder",
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lambder",
			Name:      "last_run_success",
			Help:      "1 if the last run completed without item failures, 0 otherwise.",
		}),
	}
	r.registry.MustRegister(r.imagesDeleted, r.imagesCreated, r.failures, r.unresolved, r.lastRun, r.lastDuration, r.lastSuccess)
	return r
}

// Observe records a finished run. Dry runs leave the counters alone.
func (r *Recorder) Observe(report *model.RunReport) {
	r.lastRun.Set(float64(report.CompletedAt.Unix()))
	r.lastDuration.Set(report.CompletedAt.Sub(report.StartedAt).Seconds())
	if report.Status == model.RunSuccess {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
	for _, reg := range report.Regions {
		r.unresolved.WithLabelValues(reg.Region).Set(float64(len(reg.Unresolved)))
	}
	if report.DryRun {
		return
	}
	r.imagesDeleted.Add(float64(report.DeletedCount()))
	r.imagesCreated.Add(float64(len(report.Created)))
	for _, f := range report.Failures {
		r.failures.WithLabelValues(string(f.Kind)).Inc()
	}
}

// WriteTextfile atomically writes the current values in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Registry exposes the underlying registry, e.g. for tests
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
