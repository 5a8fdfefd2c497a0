package pending

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "pending"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of transactions in the pool.
	Size metrics.Gauge
	// Number of transactions refused, by reason.
	Rejected metrics.Counter
	// Number of transactions removed once included in a block.
	Included metrics.Counter
	// Number of validators with a known pending announcement.
	Validators metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Size: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "size",
			Help:      "Number of transactions in the pending pool.",
		}, labels).With(labelsAndValues...),
		Rejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected",
			Help:      "Number of transactions refused by the pending pool.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Included: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "included",
			Help:      "Number of pending transactions found in a synced block.",
		}, labels).With(labelsAndValues...),
		Validators: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "validators",
			Help:      "Number of validators with a known pending announcement.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Size:       discard.NewGauge(),
		Rejected:   discard.NewCounter(),
		Included:   discard.NewCounter(),
		Validators: discard.NewGauge(),
	}
}
