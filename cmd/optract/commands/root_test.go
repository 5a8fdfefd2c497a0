package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optract/optract/config"
	"github.com/optract/optract/libs/cli"
	"github.com/optract/optract/libs/log"
	tmos "github.com/optract/optract/libs/os"
	"github.com/optract/optract/types"
	"github.com/optract/optract/version"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig resets viper and returns a default config rooted at dir.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)
	return conf
}

// testRootCmd builds the full command tree, as main does.
func testRootCmd(t *testing.T, conf *config.Config, home string) *cobra.Command {
	logger, err := log.NewLogger(log.LogFormatPlain, log.LogLevelInfo, io.Discard)
	require.NoError(t, err)
	cmd := RootCommand(conf, logger)
	cmd.AddCommand(
		MakeInitFilesCommand(conf, logger),
		MakeShowNodeIDCommand(conf),
		MakeStatusCommand(conf),
		MakeResetCommand(conf, logger),
		VersionCmd,
	)
	return cli.PrepareBaseCmd(cmd, "OPTRACT", home)
}

func run(t *testing.T, conf *config.Config, home string, args ...string) (string, error) {
	t.Helper()
	cmd := testRootCmd(t, conf, home)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	envRoot := filepath.Join(defaultRoot, "from-env")

	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"OPTRACT_HOME": envRoot}, envRoot},
	}

	for i, tc := range cases {
		tc := tc
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			conf := clearConfig(t, defaultRoot)

			_, err := run(t, conf, defaultRoot, append([]string{"init"}, tc.args...)...)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.FileExists(t, config.ConfigFile(tc.root))
			require.FileExists(t, conf.NodeKeyFile())
		})
	}
}

func TestRootFlagsAndConfigFile(t *testing.T) {
	cases := []struct {
		args     []string
		logLevel string
	}{
		// from the config file
		{nil, "debug"},
		// flag overrides
		{[]string{"--log-level=error"}, "error"},
	}

	for i, tc := range cases {
		tc := tc
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			root := t.TempDir()
			conf := clearConfig(t, root)

			configDir := filepath.Join(root, "config")
			require.NoError(t, tmos.EnsureDir(configDir, 0700))
			require.NoError(t, writeConfigVals(configDir, map[string]string{"log-level": "debug"}))

			_, err := run(t, conf, root, append([]string{"init"}, tc.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tc.logLevel, conf.LogLevel)
		})
	}
}

func TestShowNodeID(t *testing.T) {
	root := t.TempDir()
	conf := clearConfig(t, root)

	_, err := run(t, conf, root, "init")
	require.NoError(t, err)

	nk, err := types.LoadNodeKey(conf.NodeKeyFile())
	require.NoError(t, err)

	out, err := run(t, clearConfig(t, root), root, "show-node-id")
	require.NoError(t, err)
	require.Equal(t, nk.ID.String(), strings.TrimSpace(out))
}

func TestResetAll(t *testing.T) {
	root := t.TempDir()
	conf := clearConfig(t, root)

	_, err := run(t, conf, root, "init")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(conf.DBDir(), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(conf.DBDir(), "junk"), []byte{0x01}, 0600))

	_, err = run(t, clearConfig(t, root), root, "reset", "unsafe-all")
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(conf.DBDir(), "junk"))
	require.DirExists(t, conf.DBDir())
	require.NoFileExists(t, conf.NodeKeyFile())
}

func TestStatusWithoutSnapshot(t *testing.T) {
	root := t.TempDir()
	conf := clearConfig(t, root)

	_, err := run(t, conf, root, "status", "--db-backend", "memdb")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no status saved")
}

func TestVersion(t *testing.T) {
	out, err := run(t, clearConfig(t, t.TempDir()), t.TempDir(), "version")
	require.NoError(t, err)
	require.Equal(t, version.Version, strings.TrimSpace(out))
}
