// Package roundsync tracks the curation game on the chain.
//
// A Syncer polls the block registry on a fixed interval and reconciles the
// local GameState with what it sees: a new opround replaces the round book
// and triggers retrieval of the previous round's artifacts, a new block is
// announced so it can be synced, and the epoch advances one block at a time
// once the block before it is stored locally.
package roundsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/chain"
	"github.com/optract/optract/internal/content"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/libs/service"
	"github.com/optract/optract/types"
)

// tickLength is the length of a game tick, the unit of TickNo.
const tickLength = 300 * time.Second

// BlockEvent is emitted when the chain's pending block is ahead of the
// local epoch. Block-1 is the newest committed block.
type BlockEvent struct {
	Stamp       time.Time
	TickNo      int64
	Block       uint64
	CheckClaims bool
}

// EpochEvent is emitted on a poll that found no new block.
type EpochEvent struct {
	Stamp  time.Time
	TickNo int64
	Block  uint64
}

// BlockDataEvent asks for the data of BlockNo to be synced. It is emitted
// once, on the first successful poll.
type BlockDataEvent struct {
	BlockNo uint64
}

// Rotator moves the chain client between endpoints.
type Rotator interface {
	Rotate(ctx context.Context, networkID string)
}

// Option sets an optional parameter on the Syncer.
type Option func(*Syncer)

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithClock sets the time source of the poll loop.
func WithClock(clk clock.Clock) Option {
	return func(s *Syncer) { s.clock = clk }
}

// WithRotator rotates chain endpoints before every poll.
func WithRotator(r Rotator) Option {
	return func(s *Syncer) { s.rotator = r }
}

// Syncer reconciles GameState with the chain.
type Syncer struct {
	service.BaseService
	logger log.Logger

	cfg     *config.SyncConfig
	chain   chain.Query
	content content.Store
	rotator Rotator
	metrics *Metrics
	clock   clock.Clock

	// serializes ticks
	tickMtx sync.Mutex

	mtx      sync.Mutex
	state    GameState
	lastTick time.Time

	blockHandler     func(BlockEvent)
	epochHandler     func(EpochEvent)
	blockDataHandler func(BlockDataEvent)

	artifacts sync.WaitGroup
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSyncer returns a Syncer that has observed nothing.
func NewSyncer(
	logger log.Logger,
	cfg *config.SyncConfig,
	query chain.Query,
	store content.Store,
	options ...Option,
) *Syncer {
	s := &Syncer{
		logger:  logger,
		cfg:     cfg,
		chain:   query,
		content: store,
		metrics: NopMetrics(),
		clock:   clock.New(),
		state:   NewGameState(),
	}
	s.blockHandler = func(e BlockEvent) { s.logger.Debug("new block", "block", e.Block) }
	s.epochHandler = func(e EpochEvent) { s.logger.Debug("epoch tick", "block", e.Block) }
	s.blockDataHandler = func(e BlockDataEvent) { s.logger.Debug("block data", "block", e.BlockNo) }
	s.BaseService = *service.NewBaseService(logger, "RoundSync", s)
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SetBlockHandler replaces the block handler. Nil is rejected.
func (s *Syncer) SetBlockHandler(fn func(BlockEvent)) bool {
	if fn == nil {
		return false
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.blockHandler = fn
	return true
}

// SetEpochHandler replaces the epoch handler. Nil is rejected.
func (s *Syncer) SetEpochHandler(fn func(EpochEvent)) bool {
	if fn == nil {
		return false
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.epochHandler = fn
	return true
}

// SetBlockDataHandler replaces the block data handler. Nil is rejected.
func (s *Syncer) SetBlockDataHandler(fn func(BlockDataEvent)) bool {
	if fn == nil {
		return false
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.blockDataHandler = fn
	return true
}

// OnStart implements service.Service. The first poll runs immediately.
func (s *Syncer) OnStart(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.pollRoutine(ctx)
	return nil
}

// OnStop implements service.Service. It waits for in-flight artifact
// retrievals.
func (s *Syncer) OnStop() {
	s.cancel()
	<-s.done
	s.artifacts.Wait()
}

func (s *Syncer) pollRoutine(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.Ticker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to poll chain", "err", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Restore sets the last synced block, as read from the node store on
// start.
func (s *Syncer) Restore(lastSynced uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state.LastSynced = lastSynced
	s.metrics.LastSynced.Set(float64(lastSynced))
}

// Tick polls the chain once and applies what it finds. On error the state
// is left as it was.
func (s *Syncer) Tick(ctx context.Context) error {
	s.tickMtx.Lock()
	defer s.tickMtx.Unlock()
	s.metrics.Ticks.Add(1)

	if s.rotator != nil {
		s.rotator.Rotate(ctx, s.chain.NetworkID())
	}
	stamp := s.clock.Now()

	s.chain.InvalidateCache(chain.KeyBlockNo)
	newEpoch, err := s.chain.BlockNumber(ctx)
	if err != nil {
		s.metrics.TickFailures.Add(1)
		return fmt.Errorf("querying block number: %w", err)
	}

	s.mtx.Lock()
	epoch, opround := s.state.Epoch, s.state.Opround
	s.mtx.Unlock()
	if newEpoch > epoch {
		s.logger.Debug("new block found, clearing round caches", "block", newEpoch)
		s.chain.InvalidateCache(chain.KeyRoundInfo)
		s.chain.InvalidateCache(chain.KeyRoundProgress)
		if opround >= 0 {
			s.chain.InvalidateCache(chain.RoundResultsKey(uint64(opround)))
			s.chain.InvalidateCache(chain.RoundLotteryKey(uint64(opround)))
		}
	}

	info, err := s.chain.CurrentRound(ctx)
	if err != nil {
		s.metrics.TickFailures.Add(1)
		return fmt.Errorf("querying round info: %w", err)
	}
	lottery, err := s.chain.RoundLottery(ctx, info.Round)
	if err != nil {
		s.metrics.TickFailures.Add(1)
		return fmt.Errorf("querying round %d lottery: %w", info.Round, err)
	}

	emit := s.apply(ctx, stamp, newEpoch, info, lottery)
	emit()
	return nil
}

// apply runs the round transition and epoch bookkeeping under the state
// lock and returns the event dispatch to run once the lock is released.
func (s *Syncer) apply(
	ctx context.Context,
	stamp time.Time,
	newEpoch uint64,
	info chain.RoundInfo,
	lottery chain.Lottery,
) func() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	st := &s.state
	s.lastTick = stamp

	init := false
	if st.Opround == -1 {
		st.Opround = int64(info.Round)
		st.OID = info.OID
		st.OpStart = info.Start
		init = true
	}

	checkClaims := false
	switch {
	case int64(info.Round) > st.Opround && info.Round >= 1:
		*st = GameState{
			Epoch:      st.Epoch,
			LastSynced: st.LastSynced,
			Opround:    int64(info.Round),
			OID:        info.OID,
			OpStart:    info.Start,
			OpSync:     -1,
			Drawn:      lottery.Drawn(),
			Book:       NewRoundBook(),
		}
		s.metrics.Resets.Add(1)
		s.logger.Info("new opround", "opround", info.Round, "oid", info.OID, "start", info.Start)
		s.renewPrevious(ctx, info.Round, st.Drawn)
		checkClaims = true

	case int64(info.Round) == st.Opround && lottery.Drawn():
		st.Drawn = true
		st.Lottery = lottery.Draw
		st.WinNumber = lottery.WinNumber
		st.OpStart = info.Start
	}

	var emit func()
	tickNo := stamp.Unix() / int64(tickLength/time.Second)
	if init {
		// adopt the observed epoch; the block before it is requested below
		st.Epoch = newEpoch
	}
	switch {
	case st.Epoch < newEpoch:
		// one block per tick, once the epoch block is stored
		if st.LastSynced >= st.Epoch {
			st.Epoch++
		}
		// never announce past epoch+1
		announce := newEpoch
		if announce > st.Epoch+1 {
			announce = st.Epoch + 1
		}
		ev, h := BlockEvent{Stamp: stamp, TickNo: tickNo, Block: announce, CheckClaims: checkClaims}, s.blockHandler
		emit = func() { h(ev) }

	default:
		if st.Epoch > newEpoch {
			st.Epoch = newEpoch
		}
		ev, h := EpochEvent{Stamp: stamp, TickNo: tickNo, Block: st.Epoch}, s.epochHandler
		if init && st.Epoch > 0 {
			data, dh := BlockDataEvent{BlockNo: st.Epoch - 1}, s.blockDataHandler
			emit = func() { h(ev); dh(data) }
		} else {
			emit = func() { h(ev) }
		}
	}

	s.updateMetrics()
	return emit
}

// updateMetrics must be called with mtx held.
func (s *Syncer) updateMetrics() {
	s.metrics.Epoch.Set(float64(s.state.Epoch))
	s.metrics.Opround.Set(float64(s.state.Opround))
	s.metrics.LastSynced.Set(float64(s.state.LastSynced))
	if s.state.Synchronized() {
		s.metrics.Synchronized.Set(1)
	} else {
		s.metrics.Synchronized.Set(0)
	}
}

// IsSynchronized reports whether the local data is consistent with the
// observed epoch. See GameState.Synchronized.
func (s *Syncer) IsSynchronized() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state.Synchronized()
}

// MarkBlockSynced records that the data of blockNo is stored locally.
func (s *Syncer) MarkBlockSynced(blockNo uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if blockNo > s.state.LastSynced {
		s.state.LastSynced = blockNo
	}
	if blockNo >= s.state.OpStart && int64(blockNo) > s.state.OpSync {
		s.state.OpSync = int64(blockNo)
	}
	s.updateMetrics()
}

// WithBook runs fn with the current round book and opround under the state
// lock. fn must not call back into the Syncer.
func (s *Syncer) WithBook(fn func(opround int64, oid types.Hash, book *RoundBook)) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	fn(s.state.Opround, s.state.OID, s.state.Book)
}

// State returns a copy of the game state. The round book is shared and must
// only be read through WithBook.
func (s *Syncer) State() GameState {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

// LastTick returns when the chain was last polled successfully.
func (s *Syncer) LastTick() time.Time {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lastTick
}
