package merkle

import (
	"github.com/optract/optract/crypto"
	"github.com/optract/optract/types"
)

// innerHash returns keccak256(left || right).
func innerHash(left, right types.Hash) types.Hash {
	return types.Hash(toArray(crypto.Keccak256(left.Bytes(), right.Bytes())))
}

func toArray(b []byte) (out [32]byte) {
	copy(out[:], b)
	return out
}
