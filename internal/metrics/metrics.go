// Package metrics collects the counters of a single load run and exports
// them once the run is over.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/livinlefevreloca/healthsync/internal/export"
)

const (
	namespace = "healthsync"

	// DefaultJob is the Pushgateway job name used when none is configured
	DefaultJob = "healthsync"
)

// Config controls where run metrics are exported. Both targets are optional.
type Config struct {
	PushgatewayURL string `toml:"pushgateway_url" json:"pushgateway_url"`
	TextfilePath   string `toml:"textfile_path" json:"textfile_path"`
	Job            string `toml:"job" json:"job"`
}

// Enabled reports whether any export target is configured
func (c Config) Enabled() bool {
	return c.PushgatewayURL != "" || c.TextfilePath != ""
}

// Run holds the metrics of one run in a private registry, so nothing leaks
// between runs in the same process.
type Run struct {
	registry    *prometheus.Registry
	successOnce sync.Once

	recordsInserted  prometheus.Counter
	batchesCommitted prometheus.Counter
	recordsParsed    *prometheus.CounterVec
	cutoff           prometheus.Gauge
	batchDuration    prometheus.Histogram
	lastSuccess      prometheus.Gauge
}

// NewRun creates and registers the metrics for a run
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),

		recordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Rows reported inserted by the sink.",
		}),
		batchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Insert batches committed to the sink.",
		}),
		recordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Record elements read from the export, labeled by outcome.",
		}, []string{"outcome"}),
		cutoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cutoff_timestamp_seconds",
			Help:      "Unix timestamp of the high-water mark the run loaded after.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time spent inserting and committing one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the end of the last successful run.",
		}),
	}

	r.registry.MustRegister(
		r.recordsInserted,
		r.batchesCommitted,
		r.recordsParsed,
		r.cutoff,
		r.batchDuration,
	)
	return r
}

// Registry returns the gatherer holding the run's metrics
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveBatch records a committed batch
func (r *Run) ObserveBatch(rows int64, elapsed time.Duration) {
	r.batchesCommitted.Inc()
	r.recordsInserted.Add(float64(rows))
	r.batchDuration.Observe(elapsed.Seconds())
}

// SetCutoff records the high-water mark of the run
func (r *Run) SetCutoff(cutoff time.Time) {
	r.cutoff.Set(float64(cutoff.Unix()))
}

// ObserveParse records the parser outcome counts
func (r *Run) ObserveParse(stats export.Stats) {
	r.recordsParsed.WithLabelValues("emitted").Add(float64(stats.Emitted))
	r.recordsParsed.WithLabelValues("stale").Add(float64(stats.Stale))
	r.recordsParsed.WithLabelValues("unrecognized").Add(float64(stats.Unrecognized))
}

// MarkSuccess records the end of a successful run. The gauge is only
// registered here, so a failed run never exports it.
func (r *Run) MarkSuccess(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
	r.successOnce.Do(func() {
		r.registry.MustRegister(r.lastSuccess)
	})
}

// Export writes the run's metrics to every configured target and returns
// the joined errors of the targets that failed. The Pushgateway push only
// replaces the metrics this run gathered, so a failed run leaves the last
// success timestamp of an earlier run in place.
func (r *Run) Export(ctx context.Context, config Config) error {
	var errs []error

	if config.PushgatewayURL != "" {
		job := config.Job
		if job == "" {
			job = DefaultJob
		}
		pusher := push.New(config.PushgatewayURL, job).Gatherer(r.registry)
		if err := pusher.AddContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push to %s: %w", config.PushgatewayURL, err))
		}
	}

	if config.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(config.TextfilePath, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("write textfile %s: %w", config.TextfilePath, err))
		}
	}

	return errors.Join(errs...)
}
