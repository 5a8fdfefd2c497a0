package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/optract/optract/config"
	"github.com/optract/optract/internal/store"
)

// MakeStatusCommand constructs a command that prints the last status
// snapshot saved by the node.
func MakeStatusCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last status saved by the node",
		Long: `Show the last status saved by the node. The node holds a lock on
its database while running, so run this against a stopped node.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadStatus(conf)
			if err != nil {
				return err
			}
			bz, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bz))
			return nil
		},
	}
	addDBFlags(cmd, conf)
	return cmd
}

func loadStatus(conf *config.Config) (store.Status, error) {
	db, err := config.DefaultDBProvider(&config.DBContext{ID: "optract", Config: conf})
	if err != nil {
		return store.Status{}, fmt.Errorf("opening database: %w", err)
	}
	st, err := store.NewStore(db)
	if err != nil {
		_ = db.Close()
		return store.Status{}, err
	}
	defer st.Close()

	status, err := st.LoadStatus()
	if errors.Is(err, store.ErrNotFound) {
		return store.Status{}, errors.New("no status saved yet, start the node first")
	}
	return status, err
}
