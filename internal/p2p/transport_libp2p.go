package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/optract/optract/libs/log"
)

// Libp2pTransport carries gossip over libp2p pubsub. Each joined topic has
// a reader routine forwarding subscription messages to Messages.
type Libp2pTransport struct {
	logger log.Logger
	host   host.Host
	ps     *pubsub.PubSub

	mtx    sync.Mutex
	topics map[string]*libp2pTopic
	closed bool

	msgCh chan Message
	wg    sync.WaitGroup
}

type libp2pTopic struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

var _ Transport = (*Libp2pTransport)(nil)

// NewLibp2pTransport wraps a host and its pubsub router. bufferSize is the
// inbound queue length.
func NewLibp2pTransport(logger log.Logger, h host.Host, ps *pubsub.PubSub, bufferSize int) *Libp2pTransport {
	return &Libp2pTransport{
		logger: logger,
		host:   h,
		ps:     ps,
		topics: make(map[string]*libp2pTopic),
		msgCh:  make(chan Message, bufferSize),
	}
}

// ID implements Transport.
func (t *Libp2pTransport) ID() string { return t.host.ID().Pretty() }

// Host returns the underlying libp2p host.
func (t *Libp2pTransport) Host() host.Host { return t.host }

// Join implements Transport.
func (t *Libp2pTransport) Join(name string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if _, ok := t.topics[name]; ok {
		return nil
	}

	topic, err := t.ps.Join(name)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.topics[name] = &libp2pTopic{topic: topic, sub: sub, cancel: cancel}

	t.wg.Add(1)
	go t.readLoop(ctx, name, sub)
	return nil
}

func (t *Libp2pTransport) readLoop(ctx context.Context, name string, sub *pubsub.Subscription) {
	defer t.wg.Done()
	self := t.host.ID()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, pubsub.ErrSubscriptionCancelled) {
				t.logger.Error("subscription failed", "topic", name, "err", err)
			}
			return
		}
		if msg.ReceivedFrom == self {
			continue
		}
		select {
		case t.msgCh <- Message{Topic: name, Data: msg.Data, From: msg.GetFrom().Pretty()}:
		case <-ctx.Done():
			return
		}
	}
}

// Leave implements Transport.
func (t *Libp2pTransport) Leave(name string) error {
	t.mtx.Lock()
	jt, ok := t.topics[name]
	delete(t.topics, name)
	t.mtx.Unlock()
	if !ok {
		return nil
	}
	return jt.close()
}

func (jt *libp2pTopic) close() error {
	jt.cancel()
	jt.sub.Cancel()
	return jt.topic.Close()
}

// Publish implements Transport.
func (t *Libp2pTransport) Publish(ctx context.Context, name string, data []byte) error {
	t.mtx.Lock()
	jt, ok := t.topics[name]
	t.mtx.Unlock()
	if !ok {
		return fmt.Errorf("topic %q not joined", name)
	}
	return jt.topic.Publish(ctx, data)
}

// Messages implements Transport.
func (t *Libp2pTransport) Messages() <-chan Message { return t.msgCh }

// Close implements Transport. It leaves all topics and closes the host.
func (t *Libp2pTransport) Close() error {
	t.mtx.Lock()
	if t.closed {
		t.mtx.Unlock()
		return nil
	}
	t.closed = true
	topics := t.topics
	t.topics = nil
	t.mtx.Unlock()

	for name, jt := range topics {
		if err := jt.close(); err != nil {
			t.logger.Error("failed to close topic", "topic", name, "err", err)
		}
	}
	t.wg.Wait()
	return t.host.Close()
}
