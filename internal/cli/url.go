package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelworks/reelpress/internal/video"
)

func newURLCommand(app *App) *cobra.Command {
	var input bool

	cmd := &cobra.Command{
		Use:   "url <video-id>",
		Short: "Print an access URL for a video's rendered output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			videos, err := app.Videos(ctx)
			if err != nil {
				return err
			}
			v, err := videos.Get(ctx, args[0])
			if err != nil {
				return err
			}

			key := v.OutputKey
			if input {
				key = v.InputKey
			} else if v.Status != video.StatusProcessed {
				return fmt.Errorf("video %s is %s, no output to link", v.ID, v.Status)
			}

			store, err := app.Storage()
			if err != nil {
				return err
			}
			u, err := store.URL(ctx, key, app.Cfg.PresignedExpiry)
			if err != nil {
				return err
			}
			return app.Printer.Result(
				map[string]string{"video_id": v.ID, "key": key, "url": u},
				"%s", u)
		},
	}
	cmd.Flags().BoolVar(&input, "input", false, "link the source upload instead of the output")
	return cmd
}
