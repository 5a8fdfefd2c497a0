package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/blocksync"
	"github.com/optract/optract/internal/endpoints"
	"github.com/optract/optract/internal/p2p"
	"github.com/optract/optract/internal/pending"
	"github.com/optract/optract/internal/roundsync"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

// metricsSet holds the metrics of every service of the node.
type metricsSet struct {
	gossip    *p2p.Metrics
	sync      *roundsync.Metrics
	endpoints *endpoints.Metrics
	pending   *pending.Metrics
	blocksync *blocksync.Metrics
}

// defaultMetricsProvider returns Prometheus backed metrics if
// instrumentation is enabled, and no-op metrics otherwise.
func defaultMetricsProvider(cfg *config.InstrumentationConfig) func() metricsSet {
	return func() metricsSet {
		if cfg.Prometheus {
			return metricsSet{
				gossip:    p2p.PrometheusMetrics(cfg.Namespace),
				sync:      roundsync.PrometheusMetrics(cfg.Namespace),
				endpoints: endpoints.PrometheusMetrics(cfg.Namespace),
				pending:   pending.PrometheusMetrics(cfg.Namespace),
				blocksync: blocksync.PrometheusMetrics(cfg.Namespace),
			}
		}
		return metricsSet{
			gossip:    p2p.NopMetrics(),
			sync:      roundsync.NopMetrics(),
			endpoints: endpoints.NopMetrics(),
			pending:   pending.NopMetrics(),
			blocksync: blocksync.NopMetrics(),
		}
	}
}

func initStore(conf *config.Config, dbProvider config.DBProvider) (*store.Store, error) {
	db, err := dbProvider(&config.DBContext{ID: "optract", Config: conf})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	st, err := store.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// createLibp2pTransport builds the host, the gossipsub router and the
// transport on top of them.
func createLibp2pTransport(
	ctx context.Context,
	logger log.Logger,
	conf *config.P2PConfig,
	nodeKey types.NodeKey,
) (*p2p.Libp2pTransport, error) {
	h, err := p2p.NewHost(conf, nodeKey)
	if err != nil {
		return nil, err
	}
	ps, err := p2p.NewPubSub(ctx, conf, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}
	return p2p.NewLibp2pTransport(logger, h, ps, conf.InboundBuffer), nil
}

func logNodeStartupInfo(logger log.Logger, conf *config.Config, nodeKey types.NodeKey, instance string) {
	logger.Info("optract node",
		"moniker", conf.Moniker,
		"node_id", nodeKey.ID,
		"instance", instance,
		"network_id", conf.Chain.NetworkID,
		"topic", conf.P2P.Topic,
	)
}

// startPrometheusServer starts a Prometheus HTTP server, listening for
// metrics collectors on addr.
func startPrometheusServer(logger log.Logger, cfg *config.InstrumentationConfig) *http.Server {
	srv := &http.Server{
		Addr: cfg.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}
