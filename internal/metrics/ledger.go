package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/model"
	"github.com/cpm-tools/corvil-extract/internal/store"
)

// ledgerWindow caps how many recent runs a scrape summarizes.
const ledgerWindow = 10000

// RunLister is the part of the run ledger the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.ExtractRun, error)
}

// LedgerCollector exposes the run ledger at scrape time: run counts by
// market, extract and status, and the completion time of the newest
// successful run per extract.
type LedgerCollector struct {
	runs    RunLister
	timeout time.Duration

	runsDesc        *prometheus.Desc
	lastSuccessDesc *prometheus.Desc
	upDesc          *prometheus.Desc
}

// NewLedgerCollector creates a collector reading from runs. Each scrape
// queries the ledger once, bounded by timeout.
func NewLedgerCollector(runs RunLister, timeout time.Duration) *LedgerCollector {
	return &LedgerCollector{
		runs:    runs,
		timeout: timeout,
		runsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "runs"),
			"Recorded extract runs by status.",
			[]string{"market", "extract", "status"}, nil,
		),
		lastSuccessDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "last_success_timestamp_seconds"),
			"Completion time of the newest successful run.",
			[]string{"market", "extract"}, nil,
		),
		upDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "up"),
			"Whether the last ledger query succeeded.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsDesc
	ch <- c.lastSuccessDesc
	ch <- c.upDesc
}

type runKey struct{ market, extract, status string }

type extractKey struct{ market, extract string }

// Collect implements prometheus.Collector.
func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: ledgerWindow})
	if err != nil {
		zap.L().Warn("metrics: list runs", zap.Error(err))
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1)

	counts := make(map[runKey]int)
	lastSuccess := make(map[extractKey]time.Time)
	for _, r := range runs {
		counts[runKey{r.Market, r.ExtractName, string(r.Status)}]++
		if r.Status == model.RunStatusComplete && r.CompletedAt != nil {
			k := extractKey{r.Market, r.ExtractName}
			if r.CompletedAt.After(lastSuccess[k]) {
				lastSuccess[k] = *r.CompletedAt
			}
		}
	}

	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.runsDesc, prometheus.GaugeValue, float64(n), k.market, k.extract, k.status)
	}
	for k, ts := range lastSuccess {
		ch <- prometheus.MustNewConstMetric(c.lastSuccessDesc, prometheus.GaugeValue,
			float64(ts.Unix()), k.market, k.extract)
	}
}

// LedgerHandler serves the ledger collector on a registry of its own.
func LedgerHandler(runs RunLister, timeout time.Duration) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewLedgerCollector(runs, timeout))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
