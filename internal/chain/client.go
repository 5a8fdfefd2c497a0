package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
)

// ErrNetworkMismatch is returned by SwitchEndpoint when the endpoint serves
// a different network.
var ErrNetworkMismatch = errors.New("endpoint serves a different network")

// Backend is the subset of an Ethereum RPC client the registry reads use.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc connects to an RPC endpoint.
type DialFunc func(ctx context.Context, url string) (Backend, error)

// DialEthclient dials url with go-ethereum's ethclient.
func DialEthclient(ctx context.Context, url string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client reads the block registry through one endpoint at a time. Results
// are cached by key until invalidated; concurrent reads of the same key
// share one call.
type Client struct {
	logger    log.Logger
	networkID string
	registry  common.Address
	timeout   time.Duration
	dial      DialFunc

	mtx      sync.RWMutex
	backend  Backend
	endpoint string

	cache *lru.Cache
	group singleflight.Group
}

var _ Query = (*Client)(nil)

// ClientOption sets an optional parameter on the Client.
type ClientOption func(*Client)

// WithDialer replaces the RPC dialer.
func WithDialer(dial DialFunc) ClientOption {
	return func(c *Client) { c.dial = dial }
}

// NewClient returns a client for the registry at cfg.RegistryAddress. It is
// not connected until SwitchEndpoint succeeds once.
func NewClient(logger log.Logger, cfg *config.ChainConfig, options ...ClientOption) (*Client, error) {
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	c := &Client{
		logger:    logger,
		networkID: cfg.NetworkID,
		registry:  common.HexToAddress(cfg.RegistryAddress),
		timeout:   cfg.RequestTimeout,
		dial:      DialEthclient,
		cache:     cache,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NetworkID implements Query.
func (c *Client) NetworkID() string { return c.networkID }

// Endpoint implements Query.
func (c *Client) Endpoint() string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.endpoint
}

// SwitchEndpoint implements Query. The new endpoint must answer with the
// configured network id before it is adopted.
func (c *Client) SwitchEndpoint(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	backend, err := c.dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	id, err := backend.NetworkID(ctx)
	if err != nil {
		backend.Close()
		return fmt.Errorf("querying network id of %s: %w", url, err)
	}
	if id.String() != c.networkID {
		backend.Close()
		return fmt.Errorf("%w: %s reports %s, want %s", ErrNetworkMismatch, url, id, c.networkID)
	}

	c.mtx.Lock()
	old := c.backend
	c.backend, c.endpoint = backend, url
	c.mtx.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Close disconnects from the current endpoint.
func (c *Client) Close() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.backend != nil {
		c.backend.Close()
		c.backend, c.endpoint = nil, ""
	}
}

// InvalidateCache implements Query.
func (c *Client) InvalidateCache(key string) {
	c.cache.Remove(key)
}

// cached returns the value under key, loading it with fn on a miss.
func (c *Client) cached(key string, fn func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, v)
		return v, nil
	})
	return v, err
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	c.mtx.RLock()
	backend := c.backend
	c.mtx.RUnlock()
	if backend == nil {
		return nil, errors.New("no chain endpoint connected")
	}

	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &c.registry, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	vals, err := registryABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return vals, nil
}

// BlockNumber implements Query.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	v, err := c.cached(KeyBlockNo, func() (interface{}, error) {
		vals, err := c.call(ctx, methodBlockNo)
		if err != nil {
			return nil, err
		}
		o := &outputs{vals: vals}
		n := o.uint(0)
		return n, o.err
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// CurrentRound implements Query.
func (c *Client) CurrentRound(ctx context.Context) (RoundInfo, error) {
	v, err := c.cached(KeyRoundInfo, func() (interface{}, error) {
		vals, err := c.call(ctx, methodRoundInfo)
		if err != nil {
			return nil, err
		}
		return decodeRoundInfo(vals)
	})
	if err != nil {
		return RoundInfo{}, err
	}
	return v.(RoundInfo), nil
}

// RoundProgress implements Query.
func (c *Client) RoundProgress(ctx context.Context) (RoundProgress, error) {
	v, err := c.cached(KeyRoundProgress, func() (interface{}, error) {
		vals, err := c.call(ctx, methodRoundProgress)
		if err != nil {
			return nil, err
		}
		return decodeRoundProgress(vals)
	})
	if err != nil {
		return RoundProgress{}, err
	}
	return v.(RoundProgress), nil
}

// RoundLottery implements Query.
func (c *Client) RoundLottery(ctx context.Context, round uint64) (Lottery, error) {
	v, err := c.cached(RoundLotteryKey(round), func() (interface{}, error) {
		vals, err := c.call(ctx, methodRoundLottery, new(big.Int).SetUint64(round))
		if err != nil {
			return nil, err
		}
		return decodeLottery(vals)
	})
	if err != nil {
		return Lottery{}, err
	}
	return v.(Lottery), nil
}

// RoundResults implements Query.
func (c *Client) RoundResults(ctx context.Context, round uint64) (RoundResults, error) {
	v, err := c.cached(RoundResultsKey(round), func() (interface{}, error) {
		vals, err := c.call(ctx, methodRoundResult, new(big.Int).SetUint64(round))
		if err != nil {
			return nil, err
		}
		return decodeRoundResults(round, vals)
	})
	if err != nil {
		return RoundResults{}, err
	}
	return v.(RoundResults), nil
}

// BlockInfo implements Query. Committed blocks never change, so their info
// stays cached until evicted.
func (c *Client) BlockInfo(ctx context.Context, blockNo uint64) (BlockInfo, error) {
	v, err := c.cached(BlockInfoKey(blockNo), func() (interface{}, error) {
		vals, err := c.call(ctx, methodBlockInfo, new(big.Int).SetUint64(blockNo))
		if err != nil {
			return nil, err
		}
		return decodeBlockInfo(blockNo, vals)
	})
	if err != nil {
		return BlockInfo{}, err
	}
	return v.(BlockInfo), nil
}
