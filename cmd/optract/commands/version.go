package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/optract/optract/version"
)

var verbose bool

// VersionCmd prints the node version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return nil
		}
		values, err := json.MarshalIndent(struct {
			Optract        string `json:"optract"`
			GossipProtocol uint64 `json:"gossip_protocol"`
			StoreVersion   uint64 `json:"store_version"`
		}{
			Optract:        version.Version,
			GossipProtocol: version.GossipProtocol,
			StoreVersion:   version.StoreVersion,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(values))
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol and store versions")
}
