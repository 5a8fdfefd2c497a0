package blocksync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "blocksync"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of blocks synced and stored.
	Synced metrics.Counter
	// Number of failed block syncs.
	Failures metrics.Counter
	// Number of blocks waiting for a retry.
	Missing metrics.Gauge
	// Highest synced block number.
	LatestBlock metrics.Gauge
	// Time spent syncing one block.
	SyncTime metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Synced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "synced",
			Help:      "Number of blocks synced and stored.",
		}, labels).With(labelsAndValues...),
		Failures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failures",
			Help:      "Number of failed block syncs.",
		}, labels).With(labelsAndValues...),
		Missing: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "missing",
			Help:      "Number of blocks waiting for a retry.",
		}, labels).With(labelsAndValues...),
		LatestBlock: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "latest_block",
			Help:      "Highest synced block number.",
		}, labels).With(labelsAndValues...),
		SyncTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sync_time",
			Help:      "Time spent syncing one block, in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.1, 2, 10),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Synced:      discard.NewCounter(),
		Failures:    discard.NewCounter(),
		Missing:     discard.NewGauge(),
		LatestBlock: discard.NewGauge(),
		SyncTime:    discard.NewHistogram(),
	}
}
