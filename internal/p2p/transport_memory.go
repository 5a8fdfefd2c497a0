package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/optract/optract/libs/log"
)

// MemoryNetwork is an in-memory "network" that uses Go channels to
// broadcast between transports. Transports are created with
// CreateTransport. It is primarily used for testing.
type MemoryNetwork struct {
	logger     log.Logger
	bufferSize int

	mtx        sync.RWMutex
	transports map[string]*MemoryTransport
}

// NewMemoryNetwork creates a new in-memory network. bufferSize is the
// inbound queue length of each transport.
func NewMemoryNetwork(logger log.Logger, bufferSize int) *MemoryNetwork {
	return &MemoryNetwork{
		logger:     logger,
		bufferSize: bufferSize,
		transports: map[string]*MemoryTransport{},
	}
}

// CreateTransport creates a new memory transport with the given id.
func (n *MemoryNetwork) CreateTransport(id string) (*MemoryTransport, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if _, ok := n.transports[id]; ok {
		return nil, fmt.Errorf("transport with id %q already exists", id)
	}
	t := &MemoryTransport{
		network: n,
		id:      id,
		logger:  n.logger.With("local", id),
		topics:  map[string]bool{},
		msgCh:   make(chan Message, n.bufferSize),
		closeCh: make(chan struct{}),
	}
	n.transports[id] = t
	return t, nil
}

// Size returns the number of transports in the network.
func (n *MemoryNetwork) Size() int {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return len(n.transports)
}

func (n *MemoryNetwork) removeTransport(id string) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.transports, id)
}

func (n *MemoryNetwork) subscribers(topic, except string) []*MemoryTransport {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	var out []*MemoryTransport
	for id, t := range n.transports {
		if id != except && t.joined(topic) {
			out = append(out, t)
		}
	}
	return out
}

// MemoryTransport is an in-memory transport that's primarily meant for
// testing. Published messages reach every other transport in the same
// MemoryNetwork that has joined the topic.
type MemoryTransport struct {
	network *MemoryNetwork
	id      string
	logger  log.Logger

	mtx    sync.RWMutex
	topics map[string]bool

	msgCh     chan Message
	closeCh   chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*MemoryTransport)(nil)

// ID implements Transport.
func (t *MemoryTransport) ID() string { return t.id }

// Join implements Transport.
func (t *MemoryTransport) Join(topic string) error {
	select {
	case <-t.closeCh:
		return ErrTransportClosed
	default:
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.topics[topic] = true
	return nil
}

// Leave implements Transport.
func (t *MemoryTransport) Leave(topic string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delete(t.topics, topic)
	return nil
}

func (t *MemoryTransport) joined(topic string) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.topics[topic]
}

// Publish implements Transport.
func (t *MemoryTransport) Publish(ctx context.Context, topic string, data []byte) error {
	select {
	case <-t.closeCh:
		return ErrTransportClosed
	default:
	}
	if !t.joined(topic) {
		return fmt.Errorf("topic %q not joined", topic)
	}
	for _, peer := range t.network.subscribers(topic, t.id) {
		if err := peer.deliver(ctx, Message{Topic: topic, Data: data, From: t.id}); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemoryTransport) deliver(ctx context.Context, msg Message) error {
	select {
	case t.msgCh <- msg:
		return nil
	case <-t.closeCh:
		t.logger.Debug("dropping message for closed transport", "topic", msg.Topic)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages implements Transport.
func (t *MemoryTransport) Messages() <-chan Message { return t.msgCh }

// Close implements Transport. The inbound channel is left open so that
// concurrent deliveries never panic; readers must also watch their context.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.network.removeTransport(t.id)
	})
	return nil
}
