package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newQueryCmd(rc *RootConfig) *cobra.Command {
	var (
		local      bool
		start, end string
		code, date string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored dates and the row count, or show one record with --code and --date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rc)
			if err != nil {
				return err
			}
			defer a.Close()

			db, err := a.stores.Get(ctx, local)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if code != "" && date != "" {
				rec, err := db.GetRecord(ctx, code, date)
				if err != nil {
					return err
				}
				return enc.Encode(rec)
			}

			dates, err := db.AvailableDates(ctx, start, end)
			if err != nil {
				return err
			}
			count, err := db.CountRecords(ctx)
			if err != nil {
				return err
			}
			return enc.Encode(map[string]any{
				"dates":       dates,
				"total_count": count,
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "read the local store")
	cmd.Flags().StringVar(&start, "start", "", "range start, YYYY-MM-DD (needs --end)")
	cmd.Flags().StringVar(&end, "end", "", "range end, YYYY-MM-DD (needs --start)")
	cmd.Flags().StringVar(&code, "code", "", "security code")
	cmd.Flags().StringVar(&date, "date", "", "record date, YYYY-MM-DD")

	return cmd
}
