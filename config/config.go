package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	// DefaultTopic is the gossip topic every node joins on start.
	DefaultTopic = "Optract"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultOptractDir = ".optract"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"

	defaultConfigFileName = "config.toml"
	defaultNodeKeyName    = "node_key.json"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultNodeKeyPath    = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config defines the top level configuration for an optract node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	P2P             *P2PConfig             `mapstructure:"p2p"`
	Chain           *ChainConfig           `mapstructure:"chain"`
	Content         *ContentConfig         `mapstructure:"content"`
	Sync            *SyncConfig            `mapstructure:"sync"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for an optract node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		P2P:             DefaultP2PConfig(),
		Chain:           DefaultChainConfig(),
		Content:         DefaultContentConfig(),
		Sync:            DefaultSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		P2P:             TestP2PConfig(),
		Chain:           TestChainConfig(),
		Content:         TestContentConfig(),
		Sync:            TestSyncConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [p2p] section")
	}
	if err := cfg.Chain.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [chain] section")
	}
	if err := cfg.Content.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [content] section")
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [sync] section")
	}
	return errors.Wrap(
		cfg.Instrumentation.ValidateBasic(),
		"error in [instrumentation] section",
	)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for an optract node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// A JSON file containing the private key of the gossip identity
	NodeKey string `mapstructure:"node-key-file"`
}

// DefaultBaseConfig returns a default base configuration for an optract node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		NodeKey:   defaultNodeKeyPath,
		Moniker:   defaultMoniker,
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing an optract node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// NodeKeyFile returns the full path to the node_key.json file
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log-format (must be 'plain' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db-backend %q", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// P2PConfig

// P2PConfig defines the configuration options for the gossip layer
type P2PConfig struct {
	// Multiaddr to listen for incoming connections
	ListenAddress string `mapstructure:"laddr"`

	// Comma separated list of peer multiaddrs (with /p2p/<id>) to dial on start
	BootstrapPeers string `mapstructure:"bootstrap-peers"`

	// Topic joined on start
	Topic string `mapstructure:"topic"`

	// Discover peers on the local network
	MDNS bool `mapstructure:"mdns"`

	// Try to map the listen port on the gateway
	UPNP bool `mapstructure:"upnp"`

	// A payload or peer seen again within this window is dropped
	DuplicateWindow time.Duration `mapstructure:"duplicate-window"`

	// Fingerprints and peer stamps older than this are evicted
	EvictionAge time.Duration `mapstructure:"eviction-age"`

	// Outbound publish rate (messages per second) and burst
	PublishRate  float64 `mapstructure:"publish-rate"`
	PublishBurst int     `mapstructure:"publish-burst"`

	// Content id (Qm...) attached to published payloads telling peers where
	// this node keeps its data
	RoutingHint string `mapstructure:"routing-hint"`

	// Capacity of the inbound envelope queue
	InboundBuffer int `mapstructure:"inbound-buffer"`
}

// DefaultP2PConfig returns a default configuration for the gossip layer
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		ListenAddress:   "/ip4/0.0.0.0/tcp/45054",
		BootstrapPeers:  "",
		Topic:           DefaultTopic,
		MDNS:            true,
		UPNP:            false,
		DuplicateWindow: 30 * time.Second,
		EvictionAge:     270 * time.Second,
		PublishRate:     10,
		PublishBurst:    20,
		RoutingHint:     "",
		InboundBuffer:   256,
	}
}

// TestP2PConfig returns a configuration for testing the gossip layer
func TestP2PConfig() *P2PConfig {
	cfg := DefaultP2PConfig()
	cfg.ListenAddress = "/ip4/127.0.0.1/tcp/0"
	cfg.MDNS = false
	return cfg
}

// BootstrapPeerList splits BootstrapPeers.
func (cfg *P2PConfig) BootstrapPeerList() []string {
	return splitAndTrimEmpty(cfg.BootstrapPeers, ",", " ")
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *P2PConfig) ValidateBasic() error {
	if _, err := multiaddr.NewMultiaddr(cfg.ListenAddress); err != nil {
		return errors.Wrap(err, "invalid laddr")
	}
	for _, p := range cfg.BootstrapPeerList() {
		if _, err := multiaddr.NewMultiaddr(p); err != nil {
			return errors.Wrapf(err, "invalid bootstrap peer %q", p)
		}
	}
	if cfg.Topic == "" {
		return errors.New("topic can't be empty")
	}
	if cfg.DuplicateWindow <= 0 {
		return errors.New("duplicate-window must be positive")
	}
	if cfg.EvictionAge < cfg.DuplicateWindow {
		return errors.New("eviction-age can't be shorter than duplicate-window")
	}
	if cfg.PublishRate <= 0 {
		return errors.New("publish-rate must be positive")
	}
	if cfg.PublishBurst < 1 {
		return errors.New("publish-burst must be at least 1")
	}
	if cfg.InboundBuffer < 0 {
		return errors.New("inbound-buffer can't be negative")
	}
	if cfg.RoutingHint != "" {
		if _, err := multihash.FromB58String(cfg.RoutingHint); err != nil {
			return errors.Wrap(err, "invalid routing-hint")
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// ChainConfig

// ChainConfig defines how the node reads round state from the chain.
type ChainConfig struct {
	// Network id selecting the endpoint pool
	NetworkID string `mapstructure:"network-id"`

	// JSON-RPC endpoints serving the network. One is active at a time and the
	// round observer rotates between them.
	Endpoints []string `mapstructure:"endpoints"`

	// Address of the block registry contract
	RegistryAddress string `mapstructure:"registry-address"`

	// Number of cached query results
	CacheSize int `mapstructure:"cache-size"`

	// Per request timeout
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// DefaultChainConfig returns a default chain configuration
func DefaultChainConfig() *ChainConfig {
	return &ChainConfig{
		NetworkID:       "4",
		Endpoints:       []string{"http://127.0.0.1:8545"},
		RegistryAddress: "",
		CacheSize:       128,
		RequestTimeout:  30 * time.Second,
	}
}

// TestChainConfig returns a chain configuration for testing
func TestChainConfig() *ChainConfig {
	cfg := DefaultChainConfig()
	cfg.RegistryAddress = "0x0000000000000000000000000000000000000001"
	cfg.RequestTimeout = time.Second
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ChainConfig) ValidateBasic() error {
	if cfg.NetworkID == "" {
		return errors.New("network-id can't be empty")
	}
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}
	if cfg.RegistryAddress != "" && !common.IsHexAddress(cfg.RegistryAddress) {
		return fmt.Errorf("registry-address %q is not a hex address", cfg.RegistryAddress)
	}
	if cfg.CacheSize < 1 {
		return errors.New("cache-size must be at least 1")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ContentConfig

// ContentConfig points at the content-addressed store holding round
// artifacts and block snapshots.
type ContentConfig struct {
	// HTTP API of the IPFS daemon
	APIAddress string `mapstructure:"api-address"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultContentConfig returns a default content store configuration
func DefaultContentConfig() *ContentConfig {
	return &ContentConfig{
		APIAddress: "http://127.0.0.1:5001",
		Timeout:    60 * time.Second,
	}
}

// TestContentConfig returns a content store configuration for testing
func TestContentConfig() *ContentConfig {
	cfg := DefaultContentConfig()
	cfg.Timeout = time.Second
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ContentConfig) ValidateBasic() error {
	if cfg.APIAddress == "" {
		return errors.New("api-address can't be empty")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig controls the round observer.
type SyncConfig struct {
	// How often the chain is polled for block and round changes
	PollInterval time.Duration `mapstructure:"poll-interval"`

	// Number of most recent synced blocks kept in the node store.
	// 0 - keep everything.
	RetainBlocks uint64 `mapstructure:"retain-blocks"`
}

// DefaultSyncConfig returns a default round observer configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		PollInterval: 150 * time.Second,
		RetainBlocks: 0,
	}
}

// TestSyncConfig returns a round observer configuration for testing
func TestSyncConfig() *SyncConfig {
	return &SyncConfig{
		PollInterval: 100 * time.Millisecond,
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Maximum number of simultaneous connections.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "optract",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	out := make([]string, 0, len(spl))
	for _, p := range spl {
		if trimmed := strings.Trim(p, cutset); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
