package p2p

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestSeenFilterAdmit(t *testing.T) {
	clk := clock.NewMock()
	f := NewSeenFilter(clk, 0, 0)

	payload := []byte{0xc3, 0x01, 0x02, 0x03}
	require.True(t, f.Admit(payload))
	require.False(t, f.Admit(payload))

	// every rejection refreshes the stamp, so a steady replay never gets in
	clk.Add(20 * time.Second)
	require.False(t, f.Admit(payload))
	clk.Add(20 * time.Second)
	require.False(t, f.Admit(payload))

	clk.Add(DefaultDuplicateWindow)
	require.True(t, f.Admit(payload))
}

func TestSeenFilterTrailingByte(t *testing.T) {
	f := NewSeenFilter(clock.NewMock(), 0, 0)

	payload := []byte{0xc3, 0x01, 0x02, 0x03}
	require.True(t, f.Admit(payload))
	require.True(t, f.Admit(append(payload, 0x00)))
}

func TestSeenFilterEviction(t *testing.T) {
	clk := clock.NewMock()
	f := NewSeenFilter(clk, 30*time.Second, 270*time.Second)

	require.True(t, f.Admit([]byte("a")))
	require.True(t, f.Throttle("peer1"))

	clk.Add(100 * time.Second)
	require.True(t, f.Admit([]byte("b")))
	require.True(t, f.Throttle("peer2"))
	fps, peers := f.Len()
	require.Equal(t, 2, fps)
	require.Equal(t, 2, peers)

	// "a" and peer1 are now 280s old; the next mutation drops them
	clk.Add(180 * time.Second)
	require.True(t, f.Admit([]byte("c")))
	require.True(t, f.Throttle("peer3"))
	fps, peers = f.Len()
	require.Equal(t, 2, fps)
	require.Equal(t, 2, peers)
}

func TestSeenFilterThrottle(t *testing.T) {
	clk := clock.NewMock()
	f := NewSeenFilter(clk, 0, 0)

	require.True(t, f.Throttle("peer1"))
	require.True(t, f.Throttle("peer2"))
	require.False(t, f.Throttle("peer1"))

	clk.Add(29 * time.Second)
	require.False(t, f.Throttle("peer2"))

	clk.Add(31 * time.Second)
	require.True(t, f.Throttle("peer1"))
	require.True(t, f.Throttle("peer2"))
}

func TestSeenFilterWindowStart(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(time.Hour)
	f := NewSeenFilter(clk, 0, 0)
	require.Equal(t, clk.Now(), f.WindowStart())
}

func TestSeenFilterEvictsOnRejection(t *testing.T) {
	clk := clock.NewMock()
	f := NewSeenFilter(clk, 30*time.Second, 270*time.Second)

	require.True(t, f.Admit([]byte("a")))
	require.True(t, f.Throttle("peer1"))
	clk.Add(260 * time.Second)
	require.True(t, f.Admit([]byte("b")))
	require.True(t, f.Throttle("peer2"))

	// "a" and peer1 are now 280s old; rejected replays still sweep them
	clk.Add(20 * time.Second)
	require.False(t, f.Admit([]byte("b")))
	require.False(t, f.Throttle("peer2"))

	fps, peers := f.Len()
	require.Equal(t, 1, fps)
	require.Equal(t, 1, peers)
}
