package cli

import (
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

func newBackfillCmd(rc *RootConfig) *cobra.Command {
	var req models.BackfillRequest
	var publish bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch and store a business-day range once",
		Example: `  bwibbu backfill --start 2024-01-01 --end 2024-01-31
  bwibbu backfill --start 2024-01-02 --end 2024-01-02 --local --skip-existing`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl-C abandons the run before anything is written
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, rc)
			if err != nil {
				return err
			}
			defer a.Close()
			if publish {
				a.enableEvents()
			}

			result, err := a.service().Run(ctx, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&req.Start, "start", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&req.End, "end", "", "last date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&req.UseLocalDB, "local", false, "write to the local store instead of the remote one")
	cmd.Flags().BoolVar(&req.SkipExisting, "skip-existing", false, "leave rows that already exist untouched")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish a completion event to Kafka")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")

	return cmd
}
