// Package node wires the optract services together: the gossip topic, the
// round observer, block sync and the pending pool, all on top of the node
// store.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	dbm "github.com/tendermint/tm-db"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/blocksync"
	"github.com/optract/optract/internal/chain"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/internal/endpoints"
	"github.com/optract/optract/internal/p2p"
	"github.com/optract/optract/internal/pending"
	"github.com/optract/optract/internal/roundsync"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/libs/service"
	"github.com/optract/optract/types"
)

// Option sets an optional parameter on the Node.
type Option func(*Node)

// WithTransport replaces the libp2p transport, e.g. with a memory network.
func WithTransport(t p2p.Transport) Option {
	return func(n *Node) { n.transport = t }
}

// WithChain replaces the chain client. The endpoint pool is not used.
func WithChain(q chain.Query) Option {
	return func(n *Node) { n.chain = q }
}

// WithContentStore replaces the IPFS HTTP store.
func WithContentStore(cs content.Store) Option {
	return func(n *Node) { n.content = cs }
}

// WithDB opens the node store on db instead of the configured backend.
func WithDB(db dbm.DB) Option {
	return func(n *Node) { n.db = db }
}

// WithClock sets the time source of every service.
func WithClock(clk clock.Clock) Option {
	return func(n *Node) { n.clock = clk }
}

// Node is the highest level interface to a full optract node.
// It includes all configuration information and running services.
type Node struct {
	service.BaseService
	logger log.Logger

	config  *config.Config
	nodeKey types.NodeKey
	clock   clock.Clock
	db      dbm.DB

	store     *store.Store
	chain     chain.Query
	content   content.Store
	transport p2p.Transport
	mdns      io.Closer
	endpoints *endpoints.Pool

	gossip    *p2p.Gossip
	syncer    *roundsync.Syncer
	blockSync *blocksync.Service
	prover    *blocksync.Prover
	pool      *pending.Pool
	services  *service.Group

	progressMtx sync.Mutex
	progress    chain.RoundProgress

	prometheusSrv *http.Server
}

// New returns a new, ready to go, optract Node.
func New(ctx context.Context, conf *config.Config, logger log.Logger, options ...Option) (*Node, error) {
	nodeKey, err := types.LoadOrGenNodeKey(conf.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", conf.NodeKeyFile(), err)
	}

	n := &Node{
		logger:  logger,
		config:  conf,
		nodeKey: nodeKey,
		clock:   clock.New(),
	}
	for _, opt := range options {
		opt(n)
	}

	dbProvider := config.DefaultDBProvider
	if n.db != nil {
		db := n.db
		dbProvider = func(*config.DBContext) (dbm.DB, error) { return db, nil }
	}
	n.store, err = initStore(conf, dbProvider)
	if err != nil {
		return nil, err
	}

	metrics := defaultMetricsProvider(conf.Instrumentation)()

	var rotator roundsync.Rotator
	if n.chain == nil {
		client, err := chain.NewClient(logger.With("module", "chain"), conf.Chain)
		if err != nil {
			_ = n.store.Close()
			return nil, err
		}
		n.chain = client
		n.endpoints = endpoints.NewPool(
			logger.With("module", "endpoints"),
			client,
			map[string][]string{conf.Chain.NetworkID: conf.Chain.Endpoints},
			endpoints.WithMetrics(metrics.endpoints),
		)
		rotator = n.endpoints
	}
	if n.content == nil {
		n.content = content.NewHTTPStore(logger.With("module", "content"), conf.Content)
	}
	if n.transport == nil {
		tr, err := createLibp2pTransport(ctx, logger.With("module", "p2p"), conf.P2P, nodeKey)
		if err != nil {
			n.closeStores()
			return nil, err
		}
		n.transport = tr
	}

	n.pool = pending.NewPool(pending.DefaultMaxSize,
		pending.WithMetrics(metrics.pending),
		pending.WithClock(n.clock),
	)

	n.gossip = p2p.NewGossip(logger.With("module", "gossip"), conf.P2P, n.transport,
		p2p.WithMetrics(metrics.gossip),
		p2p.WithClock(n.clock),
	)

	syncOpts := []roundsync.Option{
		roundsync.WithMetrics(metrics.sync),
		roundsync.WithClock(n.clock),
	}
	if rotator != nil {
		syncOpts = append(syncOpts, roundsync.WithRotator(rotator))
	}
	n.syncer = roundsync.NewSyncer(logger.With("module", "roundsync"), conf.Sync,
		n.chain, n.content, syncOpts...)

	n.blockSync = blocksync.NewService(logger.With("module", "blocksync"),
		n.chain, n.content, n.store, n.syncer,
		blocksync.WithMetrics(metrics.blocksync),
		blocksync.WithClock(n.clock),
		blocksync.WithRemover(n.pool),
	)
	n.prover = blocksync.NewProver(n.chain, n.content, n.store)
	n.services = service.NewGroup(logger, "NodeServices", n.gossip, n.blockSync, n.syncer)

	n.gossip.SetTxHandler(n.handleTx)
	n.gossip.SetPendingHandler(n.handlePending)
	n.syncer.SetBlockHandler(n.handleBlock)
	n.syncer.SetBlockDataHandler(n.blockSync.OnBlockData)
	n.syncer.SetEpochHandler(n.handleEpoch)

	logNodeStartupInfo(logger, conf, nodeKey, n.store.InstanceID())

	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart starts the Node. It implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = startPrometheusServer(n.logger, n.config.Instrumentation)
	}

	lastSynced, err := n.store.LastSynced()
	if err != nil {
		return fmt.Errorf("reading last synced block: %w", err)
	}
	n.syncer.Restore(lastSynced)

	if err := n.services.Start(ctx); err != nil {
		return err
	}
	if err := n.gossip.Join(n.config.P2P.Topic); err != nil {
		return err
	}

	if h, ok := n.transport.(*p2p.Libp2pTransport); ok {
		peers := n.config.P2P.BootstrapPeerList()
		if len(peers) > 0 {
			go p2p.ConnectBootstrapPeers(ctx, n.logger, h.Host(), peers)
		}
		if n.config.P2P.MDNS {
			n.mdns, err = p2p.StartMDNS(ctx, n.logger, h.Host())
			if err != nil {
				n.logger.Error("failed to start mdns discovery", "err", err)
			}
		}
	}
	return nil
}

// OnStop stops the Node. It implements service.Service.
func (n *Node) OnStop() {
	n.logger.Info("Stopping Node")

	if n.mdns != nil {
		if err := n.mdns.Close(); err != nil {
			n.logger.Error("failed to stop mdns discovery", "err", err)
		}
	}
	if err := n.services.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
		n.logger.Error("failed to stop services", "err", err)
	}
	n.services.Wait()

	if err := n.store.SaveStatus(n.Report()); err != nil {
		n.logger.Error("failed to save status", "err", err)
	}

	if n.prometheusSrv != nil {
		if err := n.prometheusSrv.Shutdown(context.Background()); err != nil {
			// Error from closing listeners, or context timeout:
			n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}
	n.closeStores()
}

func (n *Node) closeStores() {
	if c, ok := n.chain.(interface{ Close() }); ok {
		c.Close()
	}
	if err := n.store.Close(); err != nil {
		n.logger.Error("failed to close node store", "err", err)
	}
}

// handleTx admits a gossiped transaction of the current round into the
// pending pool and the round book.
func (n *Node) handleTx(e p2p.TxEvent) {
	var err error
	n.syncer.WithBook(func(opround int64, oid types.Hash, book *roundsync.RoundBook) {
		if opround < 0 || int64(e.Tx.Opround) != opround || e.Tx.OID != oid {
			err = errStaleRound
			return
		}
		if _, err = n.pool.Add(e.Tx, e.Raw); err != nil {
			return
		}
		switch {
		case e.Tx.IsClaim():
			book.RecordClaim(e.Tx)
		case e.Tx.IsVote():
			book.RecordVote(e.Tx)
		default:
			book.RecordCuration(e.Tx)
		}
	})
	if err != nil {
		n.logger.Debug("tx not admitted", "txhash", e.Tx.TxHash, "from", e.From, "err", err)
	}
}

var errStaleRound = errors.New("tx is not for the current round")

func (n *Node) handlePending(e p2p.PendingEvent) {
	if !n.pool.UpdateValidator(e.Pending) {
		return
	}
	n.logger.Debug("validator pending pool updated",
		"validator", e.Pending.Validator, "nonce", e.Pending.Nonce, "pending", e.Pending.Pending)
}

// handleBlock drops the transactions of past rounds when a new round
// started, then passes the block on to block sync.
func (n *Node) handleBlock(e roundsync.BlockEvent) {
	if e.CheckClaims {
		n.logger.Info("new round, checking claims", "block", e.Block, "tick", e.TickNo)
		var pruned int
		n.syncer.WithBook(func(opround int64, _ types.Hash, _ *roundsync.RoundBook) {
			if opround >= 0 {
				pruned = n.pool.PruneRounds(uint64(opround))
			}
		})
		if pruned > 0 {
			n.logger.Debug("dropped txs of past rounds", "count", pruned)
		}
	}
	n.blockSync.OnBlock(e)
}

// handleEpoch refreshes the round progress, persists the status snapshot
// and trims old blocks.
func (n *Node) handleEpoch(e roundsync.EpochEvent) {
	n.refreshProgress()
	if err := n.store.SaveStatus(n.Report()); err != nil {
		n.logger.Error("failed to save status", "err", err)
	}
	retain := n.config.Sync.RetainBlocks
	if retain == 0 || e.Block <= retain {
		return
	}
	pruned, err := n.store.PruneBlocks(e.Block - retain)
	if err != nil {
		n.logger.Error("failed to prune blocks", "retain_from", e.Block-retain, "err", err)
		return
	}
	if pruned > 0 {
		n.logger.Debug("pruned blocks", "count", pruned, "retain_from", e.Block-retain)
	}
}

func (n *Node) refreshProgress() {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.Chain.RequestTimeout)
	defer cancel()

	progress, err := n.chain.RoundProgress(ctx)
	if err != nil {
		n.logger.Debug("failed to read round progress", "err", err)
		return
	}
	n.progressMtx.Lock()
	n.progress = progress
	n.progressMtx.Unlock()
}

// Broadcast publishes payload on the configured topic.
func (n *Node) Broadcast(ctx context.Context, payload []byte) bool {
	return n.gossip.Publish(ctx, n.config.P2P.Topic, payload)
}

// Report returns a snapshot of the node's view of the game.
func (n *Node) Report() store.Status {
	st := n.syncer.State()

	n.progressMtx.Lock()
	progress := n.progress
	n.progressMtx.Unlock()
	// progress read for an earlier round is not reported
	if st.Opround < 0 || progress.Round != uint64(st.Opround) {
		progress = chain.RoundProgress{}
	}

	return store.Status{
		Instance:         n.store.InstanceID(),
		LastTick:         n.syncer.LastTick(),
		Epoch:            st.Epoch,
		Opround:          st.Opround,
		OID:              st.OID,
		OpStart:          st.OpStart,
		LastSynced:       st.LastSynced,
		Drawn:            st.Drawn,
		Lottery:          st.Lottery,
		WinNumber:        st.WinNumber,
		MinSuccessRate:   st.Previous.MinSuccessRate,
		SuccessRateTable: pointerCID(st.Previous.SuccessRateTable),
		FinalistList:     pointerCID(st.Previous.FinalistList),
		Endpoint:         n.chain.Endpoint(),
		Topics:           n.gossip.Topics(),
		Synchronized:     st.Synchronized(),
		PendingTxs:       n.pool.Size(),
		Missing:          n.blockSync.Missing(),
		PendingRoot:      n.pool.Root(),
		Validators:       len(n.pool.Validators()),
		RoundVotes:       progress.Votes,
		RoundClaims:      progress.Claims,
	}
}

func pointerCID(ptr types.Hash) string {
	if types.IsZeroHash(ptr) {
		return ""
	}
	return content.CIDFromPointer(ptr)
}

// NodeKey returns the node's identity.
func (n *Node) NodeKey() types.NodeKey { return n.nodeKey }

// Syncer returns the round observer.
func (n *Node) Syncer() *roundsync.Syncer { return n.syncer }

// Pool returns the pending pool.
func (n *Node) Pool() *pending.Pool { return n.pool }

// Prover returns the proof service over synced blocks.
func (n *Node) Prover() *blocksync.Prover { return n.prover }

// Store returns the node store.
func (n *Node) Store() *store.Store { return n.store }
