package p2p

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/codec"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/libs/service"
	"github.com/optract/optract/types"
)

// ErrEmptyTopic is returned by Join for an empty topic name.
var ErrEmptyTopic = errors.New("topic name is empty")

// TxEvent is emitted for an inbound payload that decodes as a transaction.
type TxEvent struct {
	Topic string
	From  string
	Tx    types.Tx
	Raw   []byte
}

// PendingEvent is emitted for an inbound payload that decodes as a
// pending-pool sync record.
type PendingEvent struct {
	Topic   string
	From    string
	Pending types.PendingRecord
	Raw     []byte
	// Hint is the routing hint the sender attached, if any.
	Hint []byte
}

// GossipOption sets an optional parameter on the Gossip service.
type GossipOption func(*Gossip)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) GossipOption {
	return func(g *Gossip) { g.metrics = metrics }
}

// WithClock sets the time source of the seen filters.
func WithClock(clk clock.Clock) GossipOption {
	return func(g *Gossip) { g.clock = clk }
}

// Gossip joins topics on a Transport, publishes payloads and runs the
// inbound pipeline: envelope, topic check, duplicate filter, peer throttle,
// classification and dispatch to the registered handlers.
type Gossip struct {
	service.BaseService
	logger log.Logger

	cfg       *config.P2PConfig
	transport Transport
	metrics   *Metrics
	clock     clock.Clock
	limiter   *rate.Limiter
	hint      []byte

	mtx            sync.Mutex
	topics         map[string]*SeenFilter
	txHandler      func(TxEvent)
	pendingHandler func(PendingEvent)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGossip returns a Gossip service on top of transport. No topic is
// joined until Join is called.
func NewGossip(
	logger log.Logger,
	cfg *config.P2PConfig,
	transport Transport,
	options ...GossipOption,
) *Gossip {
	g := &Gossip{
		logger:    logger,
		cfg:       cfg,
		transport: transport,
		metrics:   NopMetrics(),
		clock:     clock.New(),
		limiter:   rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst),
		topics:    make(map[string]*SeenFilter),
	}
	if cfg.RoutingHint != "" {
		g.hint = []byte(cfg.RoutingHint)
	}
	g.txHandler = g.defaultTxHandler
	g.pendingHandler = g.defaultPendingHandler
	g.BaseService = *service.NewBaseService(logger, "Gossip", g)

	for _, opt := range options {
		opt(g)
	}
	return g
}

// OnStart implements service.Service.
func (g *Gossip) OnStart(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	go g.processInbound(ctx)
	return nil
}

// OnStop implements service.Service. It closes the transport.
func (g *Gossip) OnStop() {
	g.cancel()
	<-g.done
	if err := g.transport.Close(); err != nil {
		g.logger.Error("failed to close transport", "err", err)
	}
}

// ID returns the local node identity on the transport.
func (g *Gossip) ID() string { return g.transport.ID() }

// Join subscribes to topic and gives it a fresh seen filter. Joining a
// topic already joined keeps its filter.
func (g *Gossip) Join(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	g.mtx.Lock()
	defer g.mtx.Unlock()
	if _, ok := g.topics[topic]; ok {
		return nil
	}
	if err := g.transport.Join(topic); err != nil {
		return fmt.Errorf("joining %q: %w", topic, err)
	}
	g.topics[topic] = NewSeenFilter(g.clock, g.cfg.DuplicateWindow, g.cfg.EvictionAge)
	g.metrics.Topics.Set(float64(len(g.topics)))
	g.logger.Info("joined topic", "topic", topic)
	return nil
}

// Leave unsubscribes from topic and drops its seen filter. Leaving a topic
// that is not joined does nothing.
func (g *Gossip) Leave(topic string) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	if _, ok := g.topics[topic]; !ok {
		return nil
	}
	delete(g.topics, topic)
	g.metrics.Topics.Set(float64(len(g.topics)))
	if err := g.transport.Leave(topic); err != nil {
		return fmt.Errorf("leaving %q: %w", topic, err)
	}
	g.logger.Info("left topic", "topic", topic)
	return nil
}

// Topics returns the joined topics in sorted order.
func (g *Gossip) Topics() []string {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	out := make([]string, 0, len(g.topics))
	for t := range g.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (g *Gossip) filter(topic string) (*SeenFilter, bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	f, ok := g.topics[topic]
	return f, ok
}

// Publish broadcasts payload on topic. It returns false if the topic is not
// joined, the context ends while waiting for the rate limiter, or the
// transport refuses the message.
func (g *Gossip) Publish(ctx context.Context, topic string, payload []byte) bool {
	if _, ok := g.filter(topic); !ok {
		return false
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.logger.Debug("publish rate limited", "topic", topic, "err", err)
		return false
	}

	bz, err := Envelope{Topic: topic, Payload: payload, Hint: g.hint}.Marshal()
	if err != nil {
		g.logger.Error("failed to encode envelope", "topic", topic, "err", err)
		return false
	}
	if err := g.transport.Publish(ctx, topic, bz); err != nil {
		g.logger.Error("failed to publish", "topic", topic, "err", err)
		return false
	}
	g.metrics.Published.Add(1)
	return true
}

// SetTxHandler replaces the transaction handler. A nil handler is rejected
// and the current one kept.
func (g *Gossip) SetTxHandler(fn func(TxEvent)) bool {
	if fn == nil {
		return false
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.txHandler = fn
	return true
}

// SetPendingHandler replaces the pending record handler. A nil handler is
// rejected and the current one kept.
func (g *Gossip) SetPendingHandler(fn func(PendingEvent)) bool {
	if fn == nil {
		return false
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.pendingHandler = fn
	return true
}

func (g *Gossip) defaultTxHandler(e TxEvent) {
	g.logger.Debug("received tx", "topic", e.Topic, "from", e.From, "txhash", e.Tx.TxHash)
}

func (g *Gossip) defaultPendingHandler(e PendingEvent) {
	g.logger.Debug("received pending record", "topic", e.Topic, "from", e.From,
		"validator", e.Pending.Validator, "nonce", e.Pending.Nonce)
}

func (g *Gossip) processInbound(ctx context.Context) {
	defer close(g.done)
	for {
		select {
		case msg := <-g.transport.Messages():
			g.handleMessage(msg)
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage runs one transport message through the pipeline. Anything
// that goes wrong drops the message.
func (g *Gossip) handleMessage(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			g.metrics.Dropped.With("reason", dropPanic).Add(1)
			g.logger.Error("recovering from panic in inbound pipeline",
				"from", msg.From, "panic", r)
		}
	}()
	g.metrics.Received.Add(1)

	env, err := UnmarshalEnvelope(msg.Data)
	if err != nil {
		g.drop(dropEnvelope, msg, err)
		return
	}
	f, ok := g.filter(env.Topic)
	if !ok || env.Topic != msg.Topic {
		g.drop(dropTopic, msg, nil)
		return
	}
	if !f.Admit(env.Payload) {
		g.drop(dropDuplicate, msg, nil)
		return
	}
	if !f.Throttle(msg.From) {
		g.drop(dropThrottled, msg, nil)
		return
	}

	schema, rec, err := codec.Classify(env.Payload, types.TxSchema, types.PendingSchema)
	switch {
	case errors.Is(err, codec.ErrUnknownSchema):
		g.drop(dropUnknown, msg, nil)
		return
	case err != nil:
		g.drop(dropMalformed, msg, err)
		return
	}

	g.mtx.Lock()
	txHandler, pendingHandler := g.txHandler, g.pendingHandler
	g.mtx.Unlock()

	g.metrics.Classified.With("kind", schema.Name).Add(1)
	switch schema.Name {
	case types.TxSchema.Name:
		txHandler(TxEvent{
			Topic: env.Topic,
			From:  msg.From,
			Tx:    types.TxFromRecord(rec),
			Raw:   env.Payload,
		})
	case types.PendingSchema.Name:
		pendingHandler(PendingEvent{
			Topic:   env.Topic,
			From:    msg.From,
			Pending: types.PendingFromRecord(rec),
			Raw:     env.Payload,
			Hint:    env.Hint,
		})
	}
}

func (g *Gossip) drop(reason string, msg Message, err error) {
	g.metrics.Dropped.With("reason", reason).Add(1)
	if err != nil {
		g.logger.Debug("dropping message", "reason", reason, "from", msg.From, "err", err)
	}
}
