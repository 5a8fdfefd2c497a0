// Package content fetches round artifacts and block snapshots from the
// content-addressed store.
//
// The registry stores content pointers as the 32 byte digest of a sha2-256
// multihash; CIDFromPointer and PointerFromCID convert between that form and
// the "Qm..." content id the store is addressed with.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
	"github.com/optract/optract/types"
)

// DefaultMaxSize bounds a single fetched object.
const DefaultMaxSize = 64 << 20

var (
	// ErrZeroPointer is returned when asked for the no-artifact sentinel.
	ErrZeroPointer = errors.New("zero content pointer")
	// ErrTooLarge is returned for an object above the size limit.
	ErrTooLarge = errors.New("content exceeds size limit")
)

// Store is the content capability the node depends on.
type Store interface {
	Fetch(ctx context.Context, ptr types.Hash) ([]byte, error)
	Pin(ctx context.Context, ptr types.Hash) error
}

// HTTPStore talks to an IPFS daemon over its HTTP API.
type HTTPStore struct {
	logger  log.Logger
	base    string
	client  *http.Client
	maxSize int64
}

var _ Store = (*HTTPStore)(nil)

// HTTPStoreOption sets an optional parameter on the HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithMaxSize sets the largest object Fetch accepts.
func WithMaxSize(n int64) HTTPStoreOption {
	return func(s *HTTPStore) { s.maxSize = n }
}

// NewHTTPStore returns a store for the API at cfg.APIAddress.
func NewHTTPStore(logger log.Logger, cfg *config.ContentConfig, options ...HTTPStoreOption) *HTTPStore {
	s := &HTTPStore{
		logger:  logger,
		base:    strings.TrimRight(cfg.APIAddress, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		maxSize: DefaultMaxSize,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Fetch implements Store.
func (s *HTTPStore) Fetch(ctx context.Context, ptr types.Hash) ([]byte, error) {
	if types.IsZeroHash(ptr) {
		return nil, ErrZeroPointer
	}
	cid := CIDFromPointer(ptr)
	body, err := s.post(ctx, "cat", cid)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", cid, err)
	}
	s.logger.Debug("fetched content", "cid", cid, "size", len(body))
	return body, nil
}

// Pin implements Store.
func (s *HTTPStore) Pin(ctx context.Context, ptr types.Hash) error {
	if types.IsZeroHash(ptr) {
		return ErrZeroPointer
	}
	cid := CIDFromPointer(ptr)
	if _, err := s.post(ctx, "pin/add", cid); err != nil {
		return fmt.Errorf("pinning %s: %w", cid, err)
	}
	s.logger.Debug("pinned content", "cid", cid)
	return nil
}

func (s *HTTPStore) post(ctx context.Context, cmd, arg string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/v0/%s?arg=%s", s.base, cmd, url.QueryEscape(arg))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(msg))
	}
	if int64(len(body)) > s.maxSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, s.maxSize)
	}
	return body, nil
}
