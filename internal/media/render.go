package media

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/reelworks/reelpress/internal/apperror"
)

// TargetSpec fixes the composition applied to every clip: clamp to a
// maximum length, scale to the target height, pad with intro and outro
// segments showing a centered logo card, fade at both ends, overlay a
// half-opacity logo watermark centered over the body, and drop the audio
// track.
type TargetSpec struct {
	MaxClipSeconds   float64
	IntroSeconds     float64
	OutroSeconds     float64
	TargetHeight     int
	WatermarkHeight  int
	WatermarkOpacity float64
	WatermarkFadeIn  float64
}

// DefaultTargetSpec matches the house render settings.
func DefaultTargetSpec() TargetSpec {
	return TargetSpec{
		MaxClipSeconds:   30,
		IntroSeconds:     2.5,
		OutroSeconds:     2.5,
		TargetHeight:     720,
		WatermarkHeight:  150,
		WatermarkOpacity: 0.5,
		WatermarkFadeIn:  2.0,
	}
}

// ClipSeconds returns how much of the source survives the clamp.
func (s TargetSpec) ClipSeconds(sourceDuration float64) float64 {
	return math.Min(sourceDuration, s.MaxClipSeconds)
}

// ComposedSeconds returns the expected duration of the rendered output:
// the clamped clip plus the intro and outro padding.
func (s TargetSpec) ComposedSeconds(sourceDuration float64) float64 {
	return s.ClipSeconds(sourceDuration) + s.IntroSeconds + s.OutroSeconds
}

// RenderInput names the files involved in one render.
type RenderInput struct {
	InputPath      string
	LogoPath       string
	OutputPath     string
	SourceDuration float64
	Spec           TargetSpec
}

// RenderFunc produces the composed output file from a source clip and a
// logo. The output path is created or truncated by the implementation.
type RenderFunc func(ctx context.Context, in RenderInput) error

// buildFilterGraph assembles the ffmpeg filter_complex for one render.
// The logo input is used three times: a full-size card centered over the
// intro pad, another fading in over the outro pad, and a small half-opacity
// watermark centered over the body window only. Kept pure so the
// composition can be asserted without running ffmpeg.
func buildFilterGraph(in RenderInput) string {
	spec := in.Spec
	clip := spec.ClipSeconds(in.SourceDuration)
	total := spec.ComposedSeconds(in.SourceDuration)
	// The body window runs from the end of the intro to the start of the
	// outro.
	outroStart := total - spec.OutroSeconds

	var b strings.Builder
	fmt.Fprintf(&b,
		"[0:v]trim=duration=%s,setpts=PTS-STARTPTS,scale=-2:%d,"+
			"tpad=start_duration=%s:stop_duration=%s:color=black,"+
			"fade=t=in:st=0:d=%s,fade=t=out:st=%s:d=%s[base];",
		ffNum(clip), spec.TargetHeight,
		ffNum(spec.IntroSeconds), ffNum(spec.OutroSeconds),
		ffNum(spec.IntroSeconds), ffNum(outroStart), ffNum(spec.OutroSeconds))
	fmt.Fprintf(&b, "[1:v]split=3[lg0][lg1][lg2];")
	fmt.Fprintf(&b, "[lg0]scale=-2:%d[cardin];", spec.TargetHeight)
	fmt.Fprintf(&b,
		"[lg1]scale=-2:%d,format=rgba,fade=t=in:st=%s:d=%s:alpha=1[cardout];",
		spec.TargetHeight, ffNum(outroStart), ffNum(spec.WatermarkFadeIn))
	fmt.Fprintf(&b,
		"[lg2]scale=-2:%d,format=rgba,colorchannelmixer=aa=%s,"+
			"fade=t=in:st=%s:d=%s:alpha=1[mark];",
		spec.WatermarkHeight, ffNum(spec.WatermarkOpacity),
		ffNum(spec.IntroSeconds), ffNum(spec.WatermarkFadeIn))
	fmt.Fprintf(&b,
		"[base][cardin]overlay=(W-w)/2:(H-h)/2:enable='lt(t,%s)'[intro];",
		ffNum(spec.IntroSeconds))
	fmt.Fprintf(&b,
		"[intro][cardout]overlay=(W-w)/2:(H-h)/2:enable='gte(t,%s)'[body];",
		ffNum(outroStart))
	fmt.Fprintf(&b,
		"[body][mark]overlay=(W-w)/2:0.5*H:enable='between(t,%s,%s)'[out]",
		ffNum(spec.IntroSeconds), ffNum(outroStart))
	return b.String()
}

// buildRenderArgs assembles the full ffmpeg argv (minus the binary name).
func buildRenderArgs(in RenderInput) []string {
	return []string{
		"-y",
		"-i", in.InputPath,
		"-i", in.LogoPath,
		"-filter_complex", buildFilterGraph(in),
		"-map", "[out]",
		"-an",
		"-t", ffNum(in.Spec.ComposedSeconds(in.SourceDuration)),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		in.OutputPath,
	}
}

// ffNum formats a float the way ffmpeg expects, without trailing zeros.
func ffNum(v float64) string {
	return fmt.Sprintf("%g", v)
}

// NewFFmpegRenderer returns a RenderFunc that shells out to ffmpeg. Render
// failures carry ffmpeg's stderr tail as a validation error; a killed
// context surfaces as transient so the job can be retried.
func NewFFmpegRenderer() RenderFunc {
	return func(ctx context.Context, in RenderInput) error {
		cmd := exec.CommandContext(ctx, "ffmpeg", buildRenderArgs(in)...)
		var stderr strings.Builder
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return apperror.Wrap(ctx.Err(), apperror.KindTransient,
					fmt.Sprintf("render of %s interrupted", in.InputPath))
			}
			return apperror.Wrap(err, apperror.KindValidation,
				fmt.Sprintf("ffmpeg failed on %s: %s", in.InputPath, tail(stderr.String(), 400)))
		}
		return nil
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
