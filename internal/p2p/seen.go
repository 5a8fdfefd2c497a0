package p2p

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/optract/optract/crypto"
)

const (
	// DefaultDuplicateWindow is how long a payload or peer stays "recently
	// seen" after its last sighting.
	DefaultDuplicateWindow = 30 * time.Second

	// DefaultEvictionAge is how old an entry must be before it is dropped
	// from the filter.
	DefaultEvictionAge = 270 * time.Second
)

// SeenFilter remembers recently seen payload fingerprints and recently
// heard-from peers for a single topic.
//
// Both Admit and Throttle follow the same rule: a key seen within the
// duplicate window has its timestamp refreshed and is rejected; otherwise
// stale entries are evicted and the key is recorded.
type SeenFilter struct {
	clock  clock.Clock
	window time.Duration
	maxAge time.Duration

	mtx          sync.Mutex
	windowStart  time.Time
	fingerprints map[[32]byte]time.Time
	peers        map[string]time.Time
}

// NewSeenFilter returns an empty filter. Non-positive durations fall back to
// the defaults and a nil clock to the wall clock.
func NewSeenFilter(clk clock.Clock, window, maxAge time.Duration) *SeenFilter {
	if clk == nil {
		clk = clock.New()
	}
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	if maxAge <= 0 {
		maxAge = DefaultEvictionAge
	}
	return &SeenFilter{
		clock:        clk,
		window:       window,
		maxAge:       maxAge,
		windowStart:  clk.Now(),
		fingerprints: make(map[[32]byte]time.Time),
		peers:        make(map[string]time.Time),
	}
}

// Admit reports whether payload has not been seen within the duplicate
// window. The fingerprint covers every byte of payload.
func (f *SeenFilter) Admit(payload []byte) bool {
	var key [32]byte
	copy(key[:], crypto.Sha256(payload))

	f.mtx.Lock()
	defer f.mtx.Unlock()

	now := f.clock.Now()
	for k, t := range f.fingerprints {
		if now.Sub(t) > f.maxAge {
			delete(f.fingerprints, k)
		}
	}
	last, ok := f.fingerprints[key]
	f.fingerprints[key] = now
	return !ok || now.Sub(last) >= f.window
}

// Throttle reports whether peerID may deliver another message. A peer heard
// from within the duplicate window is refused.
func (f *SeenFilter) Throttle(peerID string) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	now := f.clock.Now()
	for k, t := range f.peers {
		if now.Sub(t) > f.maxAge {
			delete(f.peers, k)
		}
	}
	last, ok := f.peers[peerID]
	f.peers[peerID] = now
	return !ok || now.Sub(last) >= f.window
}

// Len returns the number of tracked fingerprints and peers.
func (f *SeenFilter) Len() (fingerprints, peers int) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.fingerprints), len(f.peers)
}

// WindowStart returns when the filter was created.
func (f *SeenFilter) WindowStart() time.Time {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.windowStart
}
