package cli

import (
	"github.com/spf13/cobra"
)

func newDepthCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "depth",
		Short: "Show queue depth and in-flight lease count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			q, err := app.Queue(ctx)
			if err != nil {
				return err
			}
			depth, err := q.Depth(ctx)
			if err != nil {
				return err
			}
			pending, err := q.PendingCount(ctx)
			if err != nil {
				return err
			}

			return app.Printer.Result(
				map[string]int64{"depth": depth, "leased": pending},
				"depth: %d (leased: %d)", depth, pending)
		},
	}
}
