package main

import (
	"os"
	"path/filepath"

	"github.com/optract/optract/cmd/optract/commands"
	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/cli"
	"github.com/optract/optract/libs/log"
)

func main() {
	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rcmd := commands.RootCommand(conf, logger)
	rcmd.AddCommand(
		commands.MakeInitFilesCommand(conf, logger),
		commands.MakeShowNodeIDCommand(conf),
		commands.MakeStatusCommand(conf),
		commands.MakeResetCommand(conf, logger),
		commands.VersionCmd,
		commands.NewRunNodeCmd(conf, logger),
	)

	cmd := cli.PrepareBaseCmd(rcmd, "OPTRACT", os.ExpandEnv(filepath.Join("$HOME", config.DefaultOptractDir)))
	if err := (cli.Executor{Command: cmd}).Execute(); err != nil {
		panic(err)
	}
}
