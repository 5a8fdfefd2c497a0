package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optract/optract/internal/p2p"
	"github.com/optract/optract/libs/log"
)

func TestMemoryTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network := p2p.NewMemoryNetwork(log.NewNopLogger(), 4)
	a, err := network.CreateTransport("a")
	require.NoError(t, err)
	b, err := network.CreateTransport("b")
	require.NoError(t, err)
	c, err := network.CreateTransport("c")
	require.NoError(t, err)
	require.Equal(t, 3, network.Size())

	_, err = network.CreateTransport("a")
	require.Error(t, err)

	require.NoError(t, a.Join("t"))
	require.NoError(t, a.Join("t"))
	require.NoError(t, b.Join("t"))

	require.Error(t, c.Publish(ctx, "t", []byte{0x01}))

	require.NoError(t, a.Publish(ctx, "t", []byte{0x01}))
	select {
	case msg := <-b.Messages():
		require.Equal(t, p2p.Message{Topic: "t", Data: []byte{0x01}, From: "a"}, msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	// no loopback, no delivery to non-members
	require.Empty(t, a.Messages())
	require.Empty(t, c.Messages())

	require.NoError(t, b.Leave("t"))
	require.NoError(t, a.Publish(ctx, "t", []byte{0x02}))
	require.Empty(t, b.Messages())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, 2, network.Size())
	require.ErrorIs(t, a.Join("t"), p2p.ErrTransportClosed)
	require.ErrorIs(t, a.Publish(ctx, "t", nil), p2p.ErrTransportClosed)
}
