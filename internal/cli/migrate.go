package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(rc *RootConfig) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), rc)
			if err != nil {
				return err
			}
			defer a.Close()

			// opening a store migrates it
			db, err := a.stores.Get(cmd.Context(), local)
			if err != nil {
				return err
			}
			a.logger.Info().Str("driver", db.Driver()).Bool("local", local).Msg("migrations applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "migrate the local store")
	return cmd
}
