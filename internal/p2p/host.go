package p2p

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

const (
	// MDNSServiceName is the service tag nodes announce on the local network.
	MDNSServiceName = "optract-gossip"

	dialTimeout = 10 * time.Second
)

// NewHost constructs a libp2p host listening on conf.ListenAddress with the
// node's persistent identity.
func NewHost(conf *config.P2PConfig, nodeKey types.NodeKey) (host.Host, error) {
	opts := []libp2p.Option{
		libp2p.Identity(nodeKey.PrivKey),
		libp2p.ListenAddrStrings(conf.ListenAddress),
	}
	if conf.UPNP {
		opts = append(opts, libp2p.NATPortMap())
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}
	return h, nil
}

// NewPubSub constructs a gossipsub router on top of host.
func NewPubSub(ctx context.Context, conf *config.P2PConfig, h host.Host) (*pubsub.PubSub, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("creating gossipsub: %w", err)
	}
	return ps, nil
}

// ConnectBootstrapPeers dials every peer address, retrying each with an
// exponential backoff. It returns the number of peers connected. Failures
// are logged, never returned.
func ConnectBootstrapPeers(ctx context.Context, logger log.Logger, h host.Host, addrs []string) int {
	connected := 0
	for _, addr := range addrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			logger.Error("invalid bootstrap peer", "addr", addr, "err", err)
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			logger.Error("bootstrap peer has no peer id", "addr", addr, "err", err)
			continue
		}
		if pi.ID == h.ID() {
			continue
		}

		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = time.Minute
		err = backoff.Retry(func() error {
			dctx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			return h.Connect(dctx, *pi)
		}, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
		if err != nil {
			logger.Error("failed to connect to bootstrap peer", "peer", pi.ID, "err", err)
			continue
		}
		logger.Info("connected to bootstrap peer", "peer", pi.ID)
		connected++
	}
	return connected
}

// mdnsNotifee connects to peers found on the local network.
type mdnsNotifee struct {
	ctx    context.Context
	logger log.Logger
	host   host.Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, dialTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, pi); err != nil {
		n.logger.Debug("failed to connect to local peer", "peer", pi.ID, "err", err)
		return
	}
	n.logger.Info("connected to local peer", "peer", pi.ID)
}

// StartMDNS announces the host on the local network and connects to the
// peers it finds. Close the result to stop.
func StartMDNS(ctx context.Context, logger log.Logger, h host.Host) (io.Closer, error) {
	svc := mdns.NewMdnsService(h, MDNSServiceName, &mdnsNotifee{ctx: ctx, logger: logger, host: h})
	if err := svc.Start(); err != nil {
		return nil, fmt.Errorf("starting mdns: %w", err)
	}
	return svc, nil
}
