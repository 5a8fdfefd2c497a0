package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/p2p"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

const testTopic = "Optract"

type gossipSuite struct {
	gossip  *p2p.Gossip
	clock   *clock.Mock
	network *p2p.MemoryNetwork
	txs     chan p2p.TxEvent
	pending chan p2p.PendingEvent
}

func setupGossip(ctx context.Context, t *testing.T) *gossipSuite {
	t.Helper()

	logger := log.NewTestingLogger(t)
	network := p2p.NewMemoryNetwork(logger, 16)
	transport, err := network.CreateTransport("local")
	require.NoError(t, err)

	s := &gossipSuite{
		clock:   clock.NewMock(),
		network: network,
		txs:     make(chan p2p.TxEvent, 16),
		pending: make(chan p2p.PendingEvent, 16),
	}
	cfg := config.TestP2PConfig()
	cfg.RoutingHint = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	s.gossip = p2p.NewGossip(logger, cfg, transport, p2p.WithClock(s.clock))
	require.True(t, s.gossip.SetTxHandler(func(e p2p.TxEvent) { s.txs <- e }))
	require.True(t, s.gossip.SetPendingHandler(func(e p2p.PendingEvent) { s.pending <- e }))

	require.NoError(t, s.gossip.Start(ctx))
	t.Cleanup(s.gossip.Wait)
	require.NoError(t, s.gossip.Join(testTopic))
	return s
}

// peer creates a raw transport joined to testTopic.
func (s *gossipSuite) peer(t *testing.T, id string) *p2p.MemoryTransport {
	t.Helper()
	tr, err := s.network.CreateTransport(id)
	require.NoError(t, err)
	require.NoError(t, tr.Join(testTopic))
	t.Cleanup(func() { require.NoError(t, tr.Close()) })
	return tr
}

func sendPayload(ctx context.Context, t *testing.T, tr p2p.Transport, topic string, payload []byte) {
	t.Helper()
	bz, err := p2p.Envelope{Topic: topic, Payload: payload}.Marshal()
	require.NoError(t, err)
	require.NoError(t, tr.Publish(ctx, testTopic, bz))
}

func makeTx(n byte) types.Tx {
	return types.Tx{
		Opround: 3,
		Account: types.Address{0x0a, n},
		AID:     types.Hash{0xaa, n},
		OID:     types.Hash{0x01},
		V1Block: 7,
		V1Leaf:  types.Hash{0x11, n},
		Since:   100,
		TxHash:  types.Hash{0xee, n},
		R:       types.Hash{0x0f},
		S:       types.Hash{0x0e},
	}
}

func (s *gossipSuite) requireTx(t *testing.T, want types.Tx) p2p.TxEvent {
	t.Helper()
	select {
	case e := <-s.txs:
		require.Equal(t, want.TxHash, e.Tx.TxHash)
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tx event")
	}
	return p2p.TxEvent{}
}

func TestGossipDispatchesTx(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	remote := s.peer(t, "remote")

	tx := makeTx(1)
	sendPayload(ctx, t, remote, testTopic, tx.Encode())

	e := s.requireTx(t, tx)
	require.Equal(t, "remote", e.From)
	require.Equal(t, testTopic, e.Topic)
	require.Equal(t, tx.Encode(), e.Raw)
	require.True(t, e.Tx.IsVote())
	require.EqualValues(t, 7, e.Tx.V1Block)
	require.Equal(t, []byte{0x1c}, e.Tx.V)
}

func TestGossipDispatchesPending(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	remote := s.peer(t, "remote")

	rec := types.PendingRecord{
		Nonce:     4,
		Pending:   12,
		Validator: types.Address{0x42},
		Cache:     types.Hash{0xcc},
		Since:     100,
		R:         types.Hash{0x01},
		S:         types.Hash{0x02},
	}
	sendPayload(ctx, t, remote, testTopic, rec.Encode())

	select {
	case e := <-s.pending:
		require.Equal(t, rec.Validator, e.Pending.Validator)
		require.EqualValues(t, 12, e.Pending.Pending)
		require.Equal(t, rec.Cache, e.Pending.Cache)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pending event")
	}
}

func TestGossipDropsDuplicatesAndThrottles(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	alice := s.peer(t, "alice")
	bob := s.peer(t, "bob")
	carol := s.peer(t, "carol")

	tx1, tx2, tx3 := makeTx(1), makeTx(2), makeTx(3)

	sendPayload(ctx, t, alice, testTopic, tx1.Encode())
	s.requireTx(t, tx1)

	// same payload from another peer is a duplicate
	sendPayload(ctx, t, bob, testTopic, tx1.Encode())
	// alice is throttled within the window
	sendPayload(ctx, t, alice, testTopic, tx2.Encode())
	// carol gets through, and is the next event seen
	sendPayload(ctx, t, carol, testTopic, tx3.Encode())
	s.requireTx(t, tx3)

	s.clock.Add(p2p.DefaultDuplicateWindow)
	sendPayload(ctx, t, alice, testTopic, tx2.Encode())
	s.requireTx(t, tx2)
}

func TestGossipDropsInvalid(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	p1, p2, p3, p4 := s.peer(t, "p1"), s.peer(t, "p2"), s.peer(t, "p3"), s.peer(t, "p4")

	tx := makeTx(1)

	// a trailing byte passes the duplicate filter but fails to decode
	sendPayload(ctx, t, p1, testTopic, append(tx.Encode(), 0x00))
	// envelope for a topic that is not joined
	sendPayload(ctx, t, p2, "other", tx.Encode())
	// not an envelope at all
	require.NoError(t, p3.Publish(ctx, testTopic, []byte{0xff, 0x01}))

	sendPayload(ctx, t, p4, testTopic, tx.Encode())
	e := s.requireTx(t, tx)
	require.Equal(t, "p4", e.From)
}

func TestGossipRecoversHandlerPanic(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	remote := s.peer(t, "remote")
	other := s.peer(t, "other")

	require.True(t, s.gossip.SetTxHandler(func(e p2p.TxEvent) {
		if e.From == "remote" {
			panic("boom")
		}
		s.txs <- e
	}))

	sendPayload(ctx, t, remote, testTopic, makeTx(1).Encode())
	tx := makeTx(2)
	sendPayload(ctx, t, other, testTopic, tx.Encode())
	s.requireTx(t, tx)
}

func TestGossipJoinLeavePublish(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := setupGossip(ctx, t)
	remote := s.peer(t, "remote")

	require.ErrorIs(t, s.gossip.Join(""), p2p.ErrEmptyTopic)
	require.NoError(t, s.gossip.Join(testTopic))
	require.Equal(t, []string{testTopic}, s.gossip.Topics())

	require.False(t, s.gossip.Publish(ctx, "nope", []byte{0x01}))
	require.True(t, s.gossip.Publish(ctx, testTopic, []byte{0x01}))

	select {
	case msg := <-remote.Messages():
		require.Equal(t, "local", msg.From)
		env, err := p2p.UnmarshalEnvelope(msg.Data)
		require.NoError(t, err)
		require.Equal(t, testTopic, env.Topic)
		require.Equal(t, []byte{0x01}, env.Payload)
		require.Equal(t, []byte("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"), env.Hint)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}

	require.NoError(t, s.gossip.Leave(testTopic))
	require.NoError(t, s.gossip.Leave(testTopic))
	require.Empty(t, s.gossip.Topics())
	require.False(t, s.gossip.Publish(ctx, testTopic, []byte{0x01}))
}

func TestGossipRejectsNilHandler(t *testing.T) {
	g := p2p.NewGossip(log.NewNopLogger(), config.TestP2PConfig(), nil)
	require.False(t, g.SetTxHandler(nil))
	require.False(t, g.SetPendingHandler(nil))
}

func TestEnvelopeRejectsTrailingBytes(t *testing.T) {
	bz, err := p2p.Envelope{Topic: testTopic, Payload: []byte{0x01}}.Marshal()
	require.NoError(t, err)

	_, err = p2p.UnmarshalEnvelope(bz)
	require.NoError(t, err)

	_, err = p2p.UnmarshalEnvelope(append(bz, 0x00))
	require.ErrorIs(t, err, p2p.ErrBadEnvelope)
}
