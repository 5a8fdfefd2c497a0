package roundsync

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "roundsync"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Confirmed side block number.
	Epoch metrics.Gauge
	// Current opround.
	Opround metrics.Gauge
	// Last side block stored locally.
	LastSynced metrics.Gauge
	// 1 if the local state is synchronized with the chain.
	Synchronized metrics.Gauge

	Ticks        metrics.Counter
	TickFailures metrics.Counter
	// Number of opround hard resets.
	Resets metrics.Counter
	// Number of failed previous round artifact retrievals.
	ArtifactFailures metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	gauge := func(name, help string) metrics.Gauge {
		return prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels).With(labelsAndValues...)
	}
	counter := func(name, help string) metrics.Counter {
		return prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels).With(labelsAndValues...)
	}
	return &Metrics{
		Epoch:            gauge("epoch", "Confirmed side block number."),
		Opround:          gauge("opround", "Current opround."),
		LastSynced:       gauge("last_synced", "Last side block stored locally."),
		Synchronized:     gauge("synchronized", "Whether the local state is synchronized with the chain."),
		Ticks:            counter("ticks", "Number of chain polls."),
		TickFailures:     counter("tick_failures", "Number of chain polls that failed."),
		Resets:           counter("resets", "Number of opround transitions."),
		ArtifactFailures: counter("artifact_failures", "Number of failed previous round artifact retrievals."),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Epoch:            discard.NewGauge(),
		Opround:          discard.NewGauge(),
		LastSynced:       discard.NewGauge(),
		Synchronized:     discard.NewGauge(),
		Ticks:            discard.NewCounter(),
		TickFailures:     discard.NewCounter(),
		Resets:           discard.NewCounter(),
		ArtifactFailures: discard.NewCounter(),
	}
}
