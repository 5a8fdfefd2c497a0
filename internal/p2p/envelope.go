package p2p

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// ErrBadEnvelope is returned when a transport message does not carry a
// well formed envelope.
var ErrBadEnvelope = errors.New("bad envelope")

// Envelope is the gossip framing around a payload. Hint is an optional
// content pointer telling receivers where the sender keeps its data.
type Envelope struct {
	Topic   string
	Payload []byte
	Hint    []byte
}

// Marshal returns the RLP form of e.
func (e Envelope) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(&e)
}

// UnmarshalEnvelope decodes bz. Trailing bytes after the envelope are an
// error.
func UnmarshalEnvelope(bz []byte) (Envelope, error) {
	var e Envelope
	if err := rlp.DecodeBytes(bz, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if e.Topic == "" {
		return Envelope{}, fmt.Errorf("%w: missing topic", ErrBadEnvelope)
	}
	return e, nil
}
