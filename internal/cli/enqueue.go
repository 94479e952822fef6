package cli

import (
	"github.com/spf13/cobra"

	"github.com/reelworks/reelpress/internal/worker"
)

func newEnqueueCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <video-id>",
		Short: "Queue a video for processing, resubmitting it if it failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			videoID := args[0]

			videos, err := app.Videos(ctx)
			if err != nil {
				return err
			}
			q, err := app.Queue(ctx)
			if err != nil {
				return err
			}

			msgID, err := worker.EnqueueVideo(ctx, q, videos, videoID)
			if err != nil {
				return err
			}
			app.Printer.Success("queued video %s", videoID)
			return app.Printer.Result(
				map[string]string{"video_id": videoID, "message_id": msgID},
				"message id: %s", msgID)
		},
	}
}
