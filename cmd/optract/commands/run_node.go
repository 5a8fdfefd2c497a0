package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
	tmos "github.com/optract/optract/libs/os"
	"github.com/optract/optract/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding an optract node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	// p2p flags
	cmd.Flags().String("p2p.laddr", conf.P2P.ListenAddress, "node listen multiaddr")
	cmd.Flags().String("p2p.bootstrap-peers", conf.P2P.BootstrapPeers,
		"comma-delimited multiaddrs of bootstrap peers, including /p2p/<id>")
	cmd.Flags().String("p2p.topic", conf.P2P.Topic, "gossip topic to join")
	cmd.Flags().Bool("p2p.mdns", conf.P2P.MDNS, "enable/disable local network discovery")
	cmd.Flags().Bool("p2p.upnp", conf.P2P.UPNP, "enable/disable UPNP port forwarding")

	// chain flags
	cmd.Flags().String("chain.network-id", conf.Chain.NetworkID, "network id of the chain endpoints")
	cmd.Flags().StringSlice("chain.endpoints", conf.Chain.Endpoints, "JSON-RPC endpoints of the chain")
	cmd.Flags().String("chain.registry-address", conf.Chain.RegistryAddress, "block registry contract address")

	// content flags
	cmd.Flags().String("content.api-address", conf.Content.APIAddress, "HTTP API of the IPFS daemon")

	addDBFlags(cmd, conf)
}

func addDBFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String(
		"db-backend",
		conf.DBBackend,
		"database backend: goleveldb | memdb")
	cmd.Flags().String(
		"db-dir",
		conf.DBPath,
		"database directory")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the optract node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			n, err := node.New(ctx, conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("started node", "node", n.NodeKey().ID)

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
