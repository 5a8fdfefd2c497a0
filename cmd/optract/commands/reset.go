package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
	tmos "github.com/optract/optract/libs/os"
)

// MakeResetCommand constructs a command that removes the database of
// the specified optract node instance.
func MakeResetCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Set of commands to conveniently reset optract related data",
	}

	resetDataCmd := &cobra.Command{
		Use:   "data",
		Short: "Removes synced blocks, sync markers and the saved status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ResetData(conf.DBDir(), logger)
		},
	}

	resetAllCmd := &cobra.Command{
		Use:   "unsafe-all",
		Short: "Removes all optract data including the node identity",
		Long: `Removes all optract data including the node identity.
The node joins the network under a new peer id on next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ResetAll(conf.DBDir(), conf.NodeKeyFile(), logger)
		},
	}

	resetCmd.AddCommand(resetDataCmd)
	resetCmd.AddCommand(resetAllCmd)
	return resetCmd
}

// ResetData removes the node database and recreates its directory.
func ResetData(dbDir string, logger log.Logger) error {
	if err := os.RemoveAll(dbDir); err != nil {
		logger.Error("error removing node data", "dir", dbDir, "err", err)
		return err
	}
	logger.Info("Removed node data", "dir", dbDir)
	return tmos.EnsureDir(dbDir, 0700)
}

// ResetAll removes the node database and the node key.
func ResetAll(dbDir, nodeKeyFile string, logger log.Logger) error {
	if err := ResetData(dbDir, logger); err != nil {
		return err
	}
	if err := os.Remove(nodeKeyFile); err != nil && !os.IsNotExist(err) {
		logger.Error("error removing node key", "path", nodeKeyFile, "err", err)
		return err
	}
	logger.Info("Removed node key", "path", nodeKeyFile)
	return nil
}
