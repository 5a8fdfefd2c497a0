// Package endpoints spreads chain queries over a pool of upstream RPC
// endpoints.
//
// Every round sync tick calls Rotate, which moves the chain client to a
// randomly chosen endpoint other than the active one. An endpoint the client
// fails to switch to is dropped from the pool for the rest of the process
// lifetime.
package endpoints

import (
	"context"
	"sync"

	"github.com/optract/optract/libs/log"
	tmrand "github.com/optract/optract/libs/rand"
)

// Switcher moves a chain client to another endpoint.
type Switcher interface {
	SwitchEndpoint(ctx context.Context, url string) error
	Endpoint() string
}

// Pool holds the endpoint lists per network id.
type Pool struct {
	logger   log.Logger
	metrics  *Metrics
	switcher Switcher

	mtx      sync.Mutex
	pools    map[string][]string
	randIntn func(int) int
}

// Option sets an optional parameter on the Pool.
type Option func(*Pool)

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithRandIntn replaces the source of randomness used to pick endpoints.
func WithRandIntn(fn func(int) int) Option {
	return func(p *Pool) { p.randIntn = fn }
}

// NewPool returns a pool over a copy of pools.
func NewPool(logger log.Logger, switcher Switcher, pools map[string][]string, options ...Option) *Pool {
	p := &Pool{
		logger:   logger,
		metrics:  NopMetrics(),
		switcher: switcher,
		pools:    make(map[string][]string, len(pools)),
		randIntn: tmrand.NewRand().Intn,
	}
	for id, urls := range pools {
		p.pools[id] = append([]string(nil), urls...)
	}
	for _, opt := range options {
		opt(p)
	}
	for id, urls := range p.pools {
		p.metrics.PoolSize.With("network_id", id).Set(float64(len(urls)))
	}
	return p
}

// Endpoints returns the usable endpoints of networkID.
func (p *Pool) Endpoints(networkID string) []string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]string(nil), p.pools[networkID]...)
}

// Rotate switches the chain client to a random endpoint of networkID,
// other than the active one when there is a choice. A failed switch removes
// the endpoint and leaves the client where it was. Rotate never fails; an
// empty pool is logged and ignored.
func (p *Pool) Rotate(ctx context.Context, networkID string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	urls := p.pools[networkID]
	if len(urls) == 0 {
		p.logger.Error("no chain endpoints left", "network_id", networkID)
		return
	}

	avoid := indexOf(urls, p.switcher.Endpoint())
	pick := urls[tmrand.IntnAvoid(p.randIntn, len(urls), avoid)]

	if err := p.switcher.SwitchEndpoint(ctx, pick); err != nil {
		p.remove(networkID, pick)
		p.logger.Error("removing bad chain endpoint",
			"network_id", networkID, "endpoint", pick, "err", err)
		return
	}
	p.metrics.Switches.Add(1)
	p.logger.Debug("switched chain endpoint", "network_id", networkID, "endpoint", pick)
}

func (p *Pool) remove(networkID, url string) {
	urls := p.pools[networkID]
	i := indexOf(urls, url)
	if i < 0 {
		return
	}
	p.pools[networkID] = append(urls[:i:i], urls[i+1:]...)
	p.metrics.Removed.With("network_id", networkID).Add(1)
	p.metrics.PoolSize.With("network_id", networkID).Set(float64(len(p.pools[networkID])))
}

func indexOf(urls []string, url string) int {
	for i, u := range urls {
		if u == url {
			return i
		}
	}
	return -1
}
