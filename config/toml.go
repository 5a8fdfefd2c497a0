package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/optract/optract/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist.
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{
		rootDir,
		filepath.Join(rootDir, defaultConfigDir),
		filepath.Join(rootDir, defaultDataDir),
	} {
		if err := tmos.EnsureDir(dir, defaultDirPerm); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfigFile renders config using the template and writes it to
// $rootDir/config/config.toml.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return os.WriteFile(path, buffer.Bytes(), 0644)
}

// ConfigFile returns the path of the rendered config file under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteDefaultConfigFileIfNone writes the default config unless a config file
// already exists.
func WriteDefaultConfigFileIfNone(rootDir string, cfg *Config) error {
	if tmos.FileExists(ConfigFile(rootDir)) {
		return nil
	}
	return WriteConfigFile(rootDir, cfg)
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/optract/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.optract" by default, but could be changed via $OPTRACT_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | memdb
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging: debug | info | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the private key of the gossip identity
node-key-file = "{{ js .BaseConfig.NodeKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Multiaddr to listen for incoming connections
laddr = "{{ .P2P.ListenAddress }}"

# Comma separated list of peer multiaddrs to dial on start
# (e.g. "/ip4/10.0.0.1/tcp/45054/p2p/12D3KooW...")
bootstrap-peers = "{{ .P2P.BootstrapPeers }}"

# Gossip topic joined on start
topic = "{{ .P2P.Topic }}"

# Discover peers on the local network
mdns = {{ .P2P.MDNS }}

# Try to map the listen port on the gateway
upnp = {{ .P2P.UPNP }}

# A byte-identical payload, or any payload from the same peer, seen again
# within this window is dropped
duplicate-window = "{{ .P2P.DuplicateWindow }}"

# Fingerprints and peer stamps older than this are forgotten
eviction-age = "{{ .P2P.EvictionAge }}"

# Outbound publish rate (messages per second) and burst
publish-rate = {{ .P2P.PublishRate }}
publish-burst = {{ .P2P.PublishBurst }}

# Content id (Qm...) attached to published payloads telling peers where
# this node keeps its data. Empty disables the hint.
routing-hint = "{{ .P2P.RoutingHint }}"

# Capacity of the inbound message queue
inbound-buffer = {{ .P2P.InboundBuffer }}

#######################################################
###          Chain Configuration Options            ###
#######################################################
[chain]

# Network id selecting the endpoint pool
network-id = "{{ .Chain.NetworkID }}"

# JSON-RPC endpoints; the node rotates between them and drops the ones
# that fail
endpoints = [{{ range .Chain.Endpoints }}"{{ . }}", {{ end }}]

# Address of the block registry contract
registry-address = "{{ .Chain.RegistryAddress }}"

# Number of cached query results
cache-size = {{ .Chain.CacheSize }}

# Per request timeout
request-timeout = "{{ .Chain.RequestTimeout }}"

#######################################################
###         Content Configuration Options           ###
#######################################################
[content]

# HTTP API of the IPFS daemon
api-address = "{{ .Content.APIAddress }}"

timeout = "{{ .Content.Timeout }}"

#######################################################
###      Round Observer Configuration Options       ###
#######################################################
[sync]

# How often the chain is polled for block and round changes
poll-interval = "{{ .Sync.PollInterval }}"

# Number of most recent synced blocks kept in the node store.
# 0 keeps everything.
retain-blocks = {{ .Sync.RetainBlocks }}

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# 0 - unlimited.
max-open-connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot writes a test config under dir and returns it rooted there.
func ResetTestRoot(dir string) (*Config, error) {
	if err := EnsureRoot(dir); err != nil {
		return nil, err
	}
	cfg := TestConfig().SetRoot(dir)
	if err := WriteConfigFile(dir, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
