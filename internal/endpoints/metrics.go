package endpoints

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "endpoints"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of usable endpoints for the network.
	PoolSize metrics.Gauge
	// Number of endpoints removed after a failed switch.
	Removed metrics.Counter
	// Number of successful switches.
	Switches metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		PoolSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pool_size",
			Help:      "Number of usable chain endpoints.",
		}, append(labels, "network_id")).With(labelsAndValues...),
		Removed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "removed",
			Help:      "Number of chain endpoints removed after a failed switch.",
		}, append(labels, "network_id")).With(labelsAndValues...),
		Switches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "switches",
			Help:      "Number of successful endpoint switches.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		PoolSize: discard.NewGauge(),
		Removed:  discard.NewCounter(),
		Switches: discard.NewCounter(),
	}
}
