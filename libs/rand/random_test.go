package rand

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntnAvoid(t *testing.T) {
	r := NewRand()
	counts := make([]int, 4)
	for i := 0; i < 4000; i++ {
		idx := IntnAvoid(r.Intn, 4, 2)
		require.NotEqual(t, 2, idx)
		counts[idx]++
	}
	require.Zero(t, counts[2])
	for _, i := range []int{0, 1, 3} {
		require.Greater(t, counts[i], 1000)
	}

	require.Equal(t, 0, IntnAvoid(r.Intn, 1, 0))
	require.Equal(t, 0, IntnAvoid(r.Intn, 1, -1))

	// avoid not in range
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[IntnAvoid(r.Intn, 3, -1)] = true
	}
	require.Len(t, seen, 3)
}
