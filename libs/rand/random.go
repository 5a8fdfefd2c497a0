package rand

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// NewRand returns a prng seeded with OS randomness. It is not suitable for
// cryptographic use, nor safe for concurrent use without a lock.
func NewRand() *mrand.Rand {
	var seed int64
	if err := binary.Read(crand.Reader, binary.BigEndian, &seed); err != nil {
		panic(err)
	}
	return mrand.New(mrand.NewSource(seed))
}

// IntnAvoid returns a uniformly random index in [0, n) other than avoid,
// drawing with intn. With n == 1 it returns 0. avoid outside [0, n) excludes
// nothing.
func IntnAvoid(intn func(int) int, n, avoid int) int {
	if n == 1 {
		return 0
	}
	if avoid < 0 || avoid >= n {
		return intn(n)
	}
	i := intn(n - 1)
	if i >= avoid {
		i++
	}
	return i
}
