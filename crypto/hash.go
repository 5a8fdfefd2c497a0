package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of data with legacy Keccak-256, the
// hash used by the block registry for merkle roots.
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, b := range data {
		hasher.Write(b)
	}
	return hasher.Sum(nil)
}

// Sha256 is used for gossip payload fingerprints.
func Sha256(bytes []byte) []byte {
	sum := sha256.Sum256(bytes)
	return sum[:]
}
