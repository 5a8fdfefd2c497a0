package commands

import (
	"github.com/spf13/cobra"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/log"
	tmos "github.com/optract/optract/libs/os"
	"github.com/optract/optract/types"
)

// MakeInitFilesCommand returns the command that writes the default config
// file and the node key under the home directory.
func MakeInitFilesCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initializes an optract node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFilesWithConfig(conf, logger)
		},
	}
}

func initFilesWithConfig(conf *config.Config, logger log.Logger) error {
	nodeKeyFile := conf.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		nk, err := types.GenNodeKey()
		if err != nil {
			return err
		}
		if err := nk.SaveAs(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile, "id", nk.ID)
	}

	if err := config.WriteDefaultConfigFileIfNone(conf.RootDir, conf); err != nil {
		return err
	}
	logger.Info("Generated config", "path", config.ConfigFile(conf.RootDir))
	return nil
}
