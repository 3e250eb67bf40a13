// Package metrics exposes run statistics as Prometheus metrics. latwalk is a
// batch tool, so the registry is written once to a node-exporter textfile
// instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "latwalk"

// Run holds the metrics of one run. A nil *Run discards all updates.
type Run struct {
	registry *prometheus.Registry

	samples        *prometheus.CounterVec
	tours          *prometheus.CounterVec
	checkpoints    *prometheus.CounterVec
	duration       *prometheus.GaugeVec
	samplesPerSec  *prometheus.GaugeVec
	bestFilled     *prometheus.GaugeVec
	maxLength      *prometheus.GaugeVec
	checkpointSize *prometheus.HistogramVec
}

// NewRun creates the metrics on a fresh registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := []string{"lattice"}

	return &Run{
		registry: reg,
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Total registered steps",
		}, labels),
		tours: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tours_total",
			Help:      "Total completed tours",
		}, labels),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "writes_total",
			Help:      "Checkpoint writes by store (file, sqlite) and status",
		}, []string{"store", "status"}),
		duration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}, labels),
		samplesPerSec: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "samples_per_second",
			Help:      "Registered steps per second over the last run",
		}, labels),
		bestFilled: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_samples_filled",
			Help:      "Occupied (contacts, face contacts) cells of the best-sample table",
		}, labels),
		maxLength: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_walk_length",
			Help:      "Maximum walk length N of the run",
		}, labels),
		checkpointSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "size_bytes",
			Help:      "Encoded size of written checkpoints by store",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"store"}),
	}
}

// Summary is the end-of-run snapshot recorded by ObserveRun.
type Summary struct {
	Lattice          string
	N                int
	Samples          uint64
	Tours            uint64
	DurationSeconds  float64
	SamplesPerSecond float64
	BestFilled       int
}

// ObserveRun records a finished run.
func (r *Run) ObserveRun(s Summary) {
	if r == nil {
		return
	}
	r.samples.WithLabelValues(s.Lattice).Add(float64(s.Samples))
	r.tours.WithLabelValues(s.Lattice).Add(float64(s.Tours))
	r.duration.WithLabelValues(s.Lattice).Set(s.DurationSeconds)
	r.samplesPerSec.WithLabelValues(s.Lattice).Set(s.SamplesPerSecond)
	r.bestFilled.WithLabelValues(s.Lattice).Set(float64(s.BestFilled))
	r.maxLength.WithLabelValues(s.Lattice).Set(float64(s.N))
}

// CheckpointWritten records a checkpoint write to store. size is ignored
// when non-positive.
func (r *Run) CheckpointWritten(store string, size int64, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.checkpoints.WithLabelValues(store, status).Inc()
	if err == nil && size > 0 {
		r.checkpointSize.WithLabelValues(store).Observe(float64(size))
	}
}

// Gatherer exposes the registry.
func (r *Run) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes the registry to path in the Prometheus text format.
func (r *Run) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
