package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/reelworks/reelpress/internal/apperror"
)

// ProbeResult is the subset of ffprobe output the pipeline cares about.
type ProbeResult struct {
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
}

// ProbeFunc inspects a media file on disk. Implementations classify
// unreadable or stream-less files as validation errors so callers can treat
// them as permanent.
type ProbeFunc func(ctx context.Context, path string) (ProbeResult, error)

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// NewFFProbe returns a ProbeFunc that shells out to ffprobe with a bounded
// timeout. A probe that cannot finish within the timeout is treated like a
// corrupt file: ffprobe hangs on truncated containers, and waiting longer
// does not fix them.
func NewFFProbe(timeout time.Duration) ProbeFunc {
	return func(ctx context.Context, path string) (ProbeResult, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "ffprobe",
			"-v", "error",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		)
		out, err := cmd.Output()
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ProbeResult{}, apperror.Wrap(err, apperror.KindValidation,
					fmt.Sprintf("probe of %s timed out after %s", path, timeout))
			}
			return ProbeResult{}, apperror.Wrap(err, apperror.KindValidation,
				fmt.Sprintf("ffprobe failed on %s", path))
		}
		return parseProbeOutput(path, out)
	}
}

func parseProbeOutput(path string, raw []byte) (ProbeResult, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ProbeResult{}, apperror.Wrap(err, apperror.KindValidation,
			fmt.Sprintf("unreadable ffprobe output for %s", path))
	}

	var result ProbeResult
	for _, stream := range parsed.Streams {
		if stream.CodecType == "video" {
			result.Width = stream.Width
			result.Height = stream.Height
			result.Codec = stream.CodecName
			break
		}
	}
	if result.Width == 0 || result.Height == 0 {
		return ProbeResult{}, apperror.New(apperror.KindValidation,
			fmt.Sprintf("%s has no video stream", path))
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return ProbeResult{}, apperror.New(apperror.KindValidation,
			fmt.Sprintf("%s reports no positive duration", path))
	}
	result.DurationSeconds = duration
	return result, nil
}
