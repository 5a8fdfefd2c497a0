package blocksync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/optract/optract/internal/chain"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/internal/roundsync"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/libs/service"
	"github.com/optract/optract/types"
)

const (
	requestQueueSize = 64
	syncTimeout      = 2 * time.Minute
)

// Marker is told about every block stored.
type Marker interface {
	MarkBlockSynced(blockNo uint64)
}

// Remover drops the transactions of a synced block.
type Remover interface {
	Remove(txHashes []types.Hash) int
}

// Option sets an optional parameter on the Service.
type Option func(*Service)

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the time source for sync stamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// WithRemover drops the leaves of every synced block through r.
func WithRemover(r Remover) Option {
	return func(s *Service) { s.remover = r }
}

// Service syncs block data requested by round sync events, one block at a
// time.
type Service struct {
	service.BaseService
	logger log.Logger

	chain   chain.Query
	content content.Store
	store   *store.Store
	marker  Marker
	remover Remover
	metrics *Metrics
	clock   clock.Clock

	mtx     sync.Mutex
	queued  map[uint64]bool
	missing map[uint64]bool

	requests chan uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewService returns a Service that stores blocks in st and reports them
// to marker.
func NewService(
	logger log.Logger,
	query chain.Query,
	cs content.Store,
	st *store.Store,
	marker Marker,
	options ...Option,
) *Service {
	s := &Service{
		logger:   logger,
		chain:    query,
		content:  cs,
		store:    st,
		marker:   marker,
		metrics:  NopMetrics(),
		clock:    clock.New(),
		queued:   make(map[uint64]bool),
		missing:  make(map[uint64]bool),
		requests: make(chan uint64, requestQueueSize),
	}
	s.BaseService = *service.NewBaseService(logger, "BlockSync", s)
	for _, opt := range options {
		opt(s)
	}
	return s
}

// OnStart implements service.Service.
func (s *Service) OnStart(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.syncRoutine(ctx)
	return nil
}

// OnStop implements service.Service.
func (s *Service) OnStop() {
	s.cancel()
	<-s.done
}

// OnBlock handles a round sync BlockEvent. The event carries the pending
// block, so the block before it is requested, along with every block still
// missing.
func (s *Service) OnBlock(e roundsync.BlockEvent) {
	if e.Block > 0 {
		s.Request(e.Block - 1)
	}
	for _, n := range s.Missing() {
		s.Request(n)
	}
}

// OnBlockData handles a round sync BlockDataEvent.
func (s *Service) OnBlockData(e roundsync.BlockDataEvent) {
	s.Request(e.BlockNo)
}

// Request queues blockNo for syncing and reports whether it was queued. A
// block already queued is not queued twice; a full queue marks the block
// missing.
func (s *Service) Request(blockNo uint64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.queued[blockNo] {
		return false
	}
	select {
	case s.requests <- blockNo:
		s.queued[blockNo] = true
		return true
	default:
		s.logger.Error("block sync queue full", "block", blockNo)
		s.setMissing(blockNo, true)
		return false
	}
}

// Missing returns the blocks whose sync failed, in ascending order.
func (s *Service) Missing() []uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]uint64, 0, len(s.missing))
	for n := range s.missing {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// setMissing must be called with mtx held.
func (s *Service) setMissing(blockNo uint64, missing bool) {
	if missing {
		s.missing[blockNo] = true
	} else {
		delete(s.missing, blockNo)
	}
	s.metrics.Missing.Set(float64(len(s.missing)))
}

func (s *Service) syncRoutine(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case n := <-s.requests:
			err := s.syncWithTimeout(ctx, n)

			s.mtx.Lock()
			delete(s.queued, n)
			s.setMissing(n, err != nil)
			s.mtx.Unlock()

			if err != nil && ctx.Err() == nil {
				s.metrics.Failures.Add(1)
				s.logger.Error("failed to sync block", "block", n, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) syncWithTimeout(ctx context.Context, blockNo uint64) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	return s.SyncBlock(ctx, blockNo)
}

// SyncBlock fetches, verifies and stores blockNo unless it is stored
// already. Either way the marker is told the block is synced.
func (s *Service) SyncBlock(ctx context.Context, blockNo uint64) error {
	ok, err := s.store.HasBlock(blockNo)
	if err != nil {
		return err
	}
	if ok {
		s.marker.MarkBlockSynced(blockNo)
		return nil
	}

	start := s.clock.Now()
	rec, err := fetchBlock(ctx, s.chain, s.content, blockNo)
	if err != nil {
		return err
	}
	rec.SyncedAt = s.clock.Now()
	if err := s.store.SaveBlock(rec); err != nil {
		return fmt.Errorf("storing block %d: %w", blockNo, err)
	}
	if err := s.content.Pin(ctx, rec.Snapshot); err != nil {
		s.logger.Error("failed to pin block snapshot", "block", blockNo, "err", err)
	}

	s.marker.MarkBlockSynced(blockNo)
	if s.remover != nil {
		if n := s.remover.Remove(rec.Leaves); n > 0 {
			s.logger.Debug("dropped included txs from pending pool", "block", blockNo, "txs", n)
		}
	}

	s.metrics.Synced.Add(1)
	s.metrics.LatestBlock.Set(float64(blockNo))
	s.metrics.SyncTime.Observe(s.clock.Since(start).Seconds())
	s.logger.Info("synced block", "block", blockNo, "leaves", len(rec.Leaves), "root", rec.MerkleRoot)
	return nil
}
