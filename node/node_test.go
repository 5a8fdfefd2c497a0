package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/chain"
	chainmocks "github.com/optract/optract/internal/chain/mocks"
	contentmocks "github.com/optract/optract/internal/content/mocks"
	"github.com/optract/optract/internal/p2p"
	"github.com/optract/optract/internal/roundsync"
	"github.com/optract/optract/internal/store"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

var testOID = types.Hash{0x01}

// chainHead is the block number and round the test chain reports.
type chainHead struct {
	mtx   sync.Mutex
	block uint64
	round chain.RoundInfo
}

func (h *chainHead) set(block uint64, round chain.RoundInfo) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.block, h.round = block, round
}

func (h *chainHead) blockNumber(context.Context) uint64 {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.block
}

func (h *chainHead) currentRound(context.Context) chain.RoundInfo {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.round
}

func newTestChain(head *chainHead) *chainmocks.Query {
	c := &chainmocks.Query{}
	c.On("InvalidateCache", mock.Anything).Return()
	c.On("NetworkID").Return("4")
	c.On("Endpoint").Return("http://127.0.0.1:8545")
	c.On("BlockNumber", mock.Anything).Return(head.blockNumber, nil)
	c.On("CurrentRound", mock.Anything).Return(head.currentRound, nil)
	c.On("RoundLottery", mock.Anything, mock.Anything).Return(chain.Lottery{}, nil)
	c.On("RoundResults", mock.Anything, mock.Anything).Return(chain.RoundResults{}, nil).Maybe()
	c.On("RoundProgress", mock.Anything).
		Return(chain.RoundProgress{Round: 1, OID: testOID, Votes: 5, Claims: 2}, nil).Maybe()
	c.On("BlockInfo", mock.Anything, mock.Anything).
		Return(chain.BlockInfo{}, errors.New("not committed")).Maybe()
	return c
}

type testNode struct {
	*Node
	head    *chainHead
	chain   *chainmocks.Query
	content *contentmocks.Store
	network *p2p.MemoryNetwork
	clock   *clock.Mock
}

func setupNode(ctx context.Context, t *testing.T) *testNode {
	t.Helper()

	conf, err := config.ResetTestRoot(t.TempDir())
	require.NoError(t, err)
	logger := log.NewTestingLogger(t)

	network := p2p.NewMemoryNetwork(logger, 16)
	transport, err := network.CreateTransport("node")
	require.NoError(t, err)

	head := &chainHead{}
	head.set(11, chain.RoundInfo{Round: 1, OID: testOID, Start: 10, Deadline: 40})
	tn := &testNode{
		head:    head,
		chain:   newTestChain(head),
		content: &contentmocks.Store{},
		network: network,
		clock:   clock.NewMock(),
	}
	tn.Node, err = New(ctx, conf, logger,
		WithTransport(transport),
		WithChain(tn.chain),
		WithContentStore(tn.content),
		WithDB(dbm.NewMemDB()),
		WithClock(tn.clock),
	)
	require.NoError(t, err)
	return tn
}

func makeTx(n byte, oid types.Hash) types.Tx {
	return types.Tx{
		Opround: 1,
		Account: types.Address{0x0a, n},
		AID:     types.Hash{0xaa, n},
		OID:     oid,
		V1Block: 7,
		V1Leaf:  types.Hash{0x11, n},
		Since:   100,
		TxHash:  types.Hash{0xee, n},
		R:       types.Hash{0x0f},
		S:       types.Hash{0x0e},
	}
}

func TestNodeAdmitsCurrentRoundTxs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := setupNode(ctx, t)

	// nothing observed yet
	vote := makeTx(1, testOID)
	n.handleTx(p2p.TxEvent{Tx: vote, Raw: vote.Encode()})
	require.Zero(t, n.Pool().Size())

	require.NoError(t, n.Syncer().Tick(ctx))
	require.EqualValues(t, 1, n.Syncer().State().Opround)

	n.handleTx(p2p.TxEvent{Tx: vote, Raw: vote.Encode()})
	n.handleTx(p2p.TxEvent{Tx: vote, Raw: vote.Encode()})

	other := makeTx(2, types.Hash{0x02})
	n.handleTx(p2p.TxEvent{Tx: other, Raw: other.Encode()})

	claim := makeTx(3, testOID)
	claim.V2Block, claim.V2Leaf = 8, types.Hash{0x22}
	n.handleTx(p2p.TxEvent{Tx: claim, Raw: claim.Encode()})

	curation := makeTx(4, testOID)
	curation.V1Block, curation.V1Leaf, curation.URL = 0, types.Hash{}, "https://example.org/a"
	n.handleTx(p2p.TxEvent{Tx: curation, Raw: curation.Encode()})

	require.Equal(t, 3, n.Pool().Size())
	require.True(t, n.Pool().Has(vote.TxHash))
	require.False(t, n.Pool().Has(other.TxHash))

	n.Syncer().WithBook(func(_ int64, _ types.Hash, book *roundsync.RoundBook) {
		require.Equal(t, uint64(1), book.VotesByArticle[vote.AID])
		require.Equal(t, uint64(7), book.VoteWatch[vote.TxHash])
		require.Equal(t, uint64(8), book.ClaimWatch[claim.TxHash])
		require.Equal(t, "https://example.org/a", book.URLByArticle[curation.AID])
	})
}

func TestNodeReportAndStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := setupNode(ctx, t)
	require.NoError(t, n.Syncer().Tick(ctx))

	rep := n.Report()
	require.Equal(t, n.Store().InstanceID(), rep.Instance)
	require.EqualValues(t, 11, rep.Epoch)
	require.EqualValues(t, 1, rep.Opround)
	require.Equal(t, testOID, rep.OID)
	require.EqualValues(t, 10, rep.OpStart)
	require.Equal(t, "http://127.0.0.1:8545", rep.Endpoint)
	require.Empty(t, rep.SuccessRateTable)
	require.False(t, rep.Synchronized)
	require.EqualValues(t, 5, rep.RoundVotes)
	require.EqualValues(t, 2, rep.RoundClaims)
	require.Equal(t, types.ZeroHash, rep.PendingRoot)

	vote := makeTx(1, testOID)
	n.handleTx(p2p.TxEvent{Tx: vote, Raw: vote.Encode()})
	require.True(t, n.pool.UpdateValidator(types.PendingRecord{Validator: types.Address{0x42}, Nonce: 1}))
	rep = n.Report()
	require.Equal(t, vote.TxHash, rep.PendingRoot)
	require.Equal(t, 1, rep.PendingTxs)
	require.Equal(t, 1, rep.Validators)

	// the epoch event of the tick persisted the same snapshot
	saved, err := n.Store().LoadStatus()
	require.NoError(t, err)
	require.Equal(t, rep.Epoch, saved.Epoch)
	require.Equal(t, rep.OID, saved.OID)
}

func TestNodeStartStop(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := setupNode(ctx, t)
	peer, err := n.network.CreateTransport("peer")
	require.NoError(t, err)
	topic := n.config.P2P.Topic
	require.NoError(t, peer.Join(topic))

	require.NoError(t, n.Start(ctx))
	require.True(t, n.IsRunning())
	require.Eventually(t, func() bool {
		return n.Syncer().State().Opround == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{topic}, n.gossip.Topics())

	// inbound tx of the current round lands in the pool
	tx := makeTx(1, testOID)
	bz, err := p2p.Envelope{Topic: topic, Payload: tx.Encode()}.Marshal()
	require.NoError(t, err)
	require.NoError(t, peer.Publish(ctx, topic, bz))
	require.Eventually(t, func() bool {
		return n.Pool().Has(tx.TxHash)
	}, 5*time.Second, 10*time.Millisecond)

	// outbound
	require.True(t, n.Broadcast(ctx, []byte{0x01, 0x02}))
	select {
	case msg := <-peer.Messages():
		env, err := p2p.UnmarshalEnvelope(msg.Data)
		require.NoError(t, err)
		require.Equal(t, []byte{0x01, 0x02}, env.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	require.NoError(t, n.Stop())
	n.Wait()
	require.False(t, n.IsRunning())
	require.NoError(t, peer.Close())
}

func TestNodeDropsPastRoundTxs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := setupNode(ctx, t)
	require.NoError(t, n.Syncer().Tick(ctx))
	for i := byte(1); i <= 3; i++ {
		tx := makeTx(i, testOID)
		n.handleTx(p2p.TxEvent{Tx: tx, Raw: tx.Encode()})
	}
	require.Equal(t, 3, n.Pool().Size())

	// round 2 opens at the next block
	nextOID := types.Hash{0x02}
	n.head.set(12, chain.RoundInfo{Round: 2, OID: nextOID, Start: 12, Deadline: 42})
	require.NoError(t, n.Syncer().Tick(ctx))
	n.Syncer().WaitArtifacts()
	require.EqualValues(t, 2, n.Syncer().State().Opround)
	require.Zero(t, n.Pool().Size())

	// the new round's txs are kept on the next round change check
	tx := makeTx(4, nextOID)
	tx.Opround = 2
	n.handleTx(p2p.TxEvent{Tx: tx, Raw: tx.Encode()})
	n.handleBlock(roundsync.BlockEvent{Block: 13, CheckClaims: true})
	require.True(t, n.Pool().Has(tx.TxHash))

	// the progress of round 1 is not reported for round 2
	require.Zero(t, n.Report().RoundVotes)
}

func TestNodePrunesOldBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := setupNode(ctx, t)
	n.config.Sync.RetainBlocks = 2

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, n.Store().SaveBlock(storeBlock(i)))
	}
	n.handleEpoch(roundsync.EpochEvent{Block: 6})

	base, err := n.Store().Base()
	require.NoError(t, err)
	require.EqualValues(t, 4, base)
}

func storeBlock(blockNo uint64) store.BlockRecord {
	return store.BlockRecord{
		BlockNo:    blockNo,
		MerkleRoot: types.Hash{byte(blockNo)},
		Leaves:     []types.Hash{{byte(blockNo), 0x01}},
		SyncedAt:   time.Unix(1650000000, 0).UTC(),
	}
}
