// Package metrics records extraction run metrics and pushes them to a
// Prometheus push gateway, and exposes the run ledger for scraping.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"
)

const namespace = "corvil_extract"

// Recorder holds the metrics of one process.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	artifactBytes *prometheus.GaugeVec
	lastSuccess   prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Extract runs by outcome.",
		}, []string{"market", "extract", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each run stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 18), // 100ms to ~7h
		}, []string{"stage"}),
		artifactBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last artifact written.",
		}, []string{"market", "extract"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.registry.MustRegister(r.runsTotal, r.stageDuration, r.artifactBytes, r.lastSuccess)
	return r
}

// ObserveRun counts a finished run. status is "complete" or an error kind.
func (r *Recorder) ObserveRun(market, extract, status string) {
	r.runsTotal.WithLabelValues(market, extract, status).Inc()
	if status == "complete" {
		r.lastSuccess.SetToCurrentTime()
	}
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Time starts timing stage; call the returned func when it ends.
func (r *Recorder) Time(stage string) func() {
	start := time.Now()
	return func() { r.ObserveStage(stage, time.Since(start)) }
}

// ObserveArtifact records the size of a written artifact.
func (r *Recorder) ObserveArtifact(market, extract string, size int64) {
	r.artifactBytes.WithLabelValues(market, extract).Set(float64(size))
}

// Push sends every metric to the gateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).Gatherer(r.registry).PushContext(ctx)
	return eris.Wrapf(err, "metrics: push to %s", url)
}
