package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Hash is a 32 byte digest: tx hashes, article ids, round ids, merkle nodes
// and content pointers.
type Hash = common.Hash

// Address is a 20 byte account address.
type Address = common.Address

// ZeroHash is the pointer value the registry reports for a round that
// produced no artifact.
var ZeroHash Hash

// IsZeroHash reports whether h is the no-artifact sentinel.
func IsZeroHash(h Hash) bool { return h == ZeroHash }

// HexToHash parses a 0x-prefixed hex string, left padding short input.
func HexToHash(s string) Hash { return common.HexToHash(s) }

func uintFromBytes(b []byte) uint64 {
	return new(big.Int).SetBytes(b).Uint64()
}

// uintToBytes returns the minimal big endian form; zero is empty.
func uintToBytes(u uint64) []byte {
	return new(big.Int).SetUint64(u).Bytes()
}

// hashBytes returns nil for the zero hash so optional hash fields stay
// absent on the wire.
func hashBytes(h Hash) []byte {
	if h == ZeroHash {
		return nil
	}
	return h.Bytes()
}
