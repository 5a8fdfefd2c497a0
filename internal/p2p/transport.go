package p2p

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by operations on a closed transport.
var ErrTransportClosed = errors.New("transport is closed")

// Message is raw data received on a topic. From identifies the peer the
// message originated at.
type Message struct {
	Topic string
	Data  []byte
	From  string
}

// Transport is a topic based broadcast network. Implementations must not
// deliver a node's own publications back to it.
type Transport interface {
	// ID returns the identity of the local node.
	ID() string

	// Join subscribes to topic. Joining twice is a no-op.
	Join(topic string) error

	// Leave unsubscribes from topic. Leaving a topic that was never joined
	// is a no-op.
	Leave(topic string) error

	// Publish broadcasts data on a joined topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Messages returns the channel inbound messages are delivered on.
	Messages() <-chan Message

	// Close leaves all topics and releases resources.
	Close() error
}
