package cli

import (
	"github.com/spf13/cobra"

	"github.com/reelworks/reelpress/internal/video"
)

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <video-id>",
		Short: "Show the current state of a video record",
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

			if app.Printer.JSON() {
				return app.Printer.Result(statusView(v), "")
			}
			app.Printer.Info("video:    %s", v.ID)
			app.Printer.Info("title:    %s", v.Title)
			app.Printer.Info("status:   %s", StatusColor(string(v.Status)))
			if v.DurationSeconds > 0 {
				app.Printer.Info("duration: %.2fs", v.DurationSeconds)
			}
			if v.Status == video.StatusProcessed {
				app.Printer.Info("output:   %s (%.2fs)", v.OutputKey, v.ProcessedDuration)
			}
			if v.Status == video.StatusFailed {
				app.Printer.Warn("reason:   %s", v.FailureReason)
			}
			app.Printer.Info("updated:  %s", v.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func statusView(v *video.Video) map[string]any {
	view := map[string]any{
		"id":         v.ID,
		"title":      v.Title,
		"status":     string(v.Status),
		"input_key":  v.InputKey,
		"created_at": v.CreatedAt,
		"updated_at": v.UpdatedAt,
	}
	if v.DurationSeconds > 0 {
		view["duration_seconds"] = v.DurationSeconds
	}
	if v.Status == video.StatusProcessed {
		view["output_key"] = v.OutputKey
		view["processed_duration"] = v.ProcessedDuration
	}
	if v.Status == video.StatusFailed {
		view["failure_reason"] = v.FailureReason
	}
	return view
}
