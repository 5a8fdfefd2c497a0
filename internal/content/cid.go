package content

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"

	"github.com/optract/optract/types"
)

// ErrUnsupportedCID is returned for content ids that are not base58
// sha2-256 multihashes ("Qm...").
var ErrUnsupportedCID = errors.New("unsupported content id")

// ValidCID reports whether cid is a base58 sha2-256 multihash whose digest
// length matches its header.
func ValidCID(cid string) bool {
	_, err := PointerFromCID(cid)
	return err == nil
}

// PointerFromCID strips the multihash header off cid, leaving the 32 byte
// digest the registry stores.
func PointerFromCID(cid string) (types.Hash, error) {
	raw, err := base58.Decode(cid)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrUnsupportedCID, err)
	}
	dm, err := multihash.Decode(raw)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrUnsupportedCID, err)
	}
	if dm.Code != multihash.SHA2_256 || dm.Length != 32 || len(dm.Digest) != 32 {
		return types.Hash{}, fmt.Errorf("%w: %s", ErrUnsupportedCID, cid)
	}
	var h types.Hash
	copy(h[:], dm.Digest)
	return h, nil
}

// CIDFromPointer rebuilds the "Qm..." content id of a registry pointer.
func CIDFromPointer(ptr types.Hash) string {
	mh, err := multihash.Encode(ptr.Bytes(), multihash.SHA2_256)
	if err != nil {
		// a 32 byte sha2-256 digest always encodes
		panic(err)
	}
	return base58.Encode(mh)
}
