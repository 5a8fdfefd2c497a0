package p2p

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MetricsSubsystem is a subsystem shared by all metrics exposed by this
// package.
const MetricsSubsystem = "gossip"

// Reasons an inbound message is dropped, used as the "reason" label.
const (
	dropEnvelope  = "envelope"
	dropTopic     = "topic"
	dropDuplicate = "duplicate"
	dropThrottled = "throttled"
	dropMalformed = "malformed"
	dropUnknown   = "unknown"
	dropPanic     = "panic"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of messages read from the transport.
	Received metrics.Counter
	// Number of inbound messages dropped, by reason.
	Dropped metrics.Counter
	// Number of inbound messages dispatched, by kind.
	Classified metrics.Counter
	// Number of messages published.
	Published metrics.Counter
	// Number of joined topics.
	Topics metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Received: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "received",
			Help:      "Number of messages read from the transport.",
		}, labels).With(labelsAndValues...),
		Dropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped",
			Help:      "Number of inbound messages dropped.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Classified: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "classified",
			Help:      "Number of inbound messages dispatched to a handler.",
		}, append(labels, "kind")).With(labelsAndValues...),
		Published: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "published",
			Help:      "Number of messages published.",
		}, labels).With(labelsAndValues...),
		Topics: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "topics",
			Help:      "Number of joined topics.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Received:   discard.NewCounter(),
		Dropped:    discard.NewCounter(),
		Classified: discard.NewCounter(),
		Published:  discard.NewCounter(),
		Topics:     discard.NewGauge(),
	}
}
