package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposedSeconds(t *testing.T) {
	spec := DefaultTargetSpec()

	tests := []struct {
		name   string
		source float64
		want   float64
	}{
		{"long clip is clamped", 45, 35},
		{"exactly at the cap", 30, 35},
		{"short clip keeps its length", 12, 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, spec.ComposedSeconds(tt.source), 1e-9)
		})
	}
}

func TestBuildFilterGraph(t *testing.T) {
	graph := buildFilterGraph(RenderInput{
		InputPath:      "in.mp4",
		LogoPath:       "logo.png",
		OutputPath:     "out.mp4",
		SourceDuration: 45,
		Spec:           DefaultTargetSpec(),
	})

	assert.Contains(t, graph, "trim=duration=30")
	assert.Contains(t, graph, "scale=-2:720")
	assert.Contains(t, graph, "tpad=start_duration=2.5:stop_duration=2.5:color=black")
	assert.Contains(t, graph, "fade=t=in:st=0:d=2.5")
	// Outro fade starts at total minus outro: 35 - 2.5.
	assert.Contains(t, graph, "fade=t=out:st=32.5:d=2.5")
	assert.Contains(t, graph, "scale=-2:150")
	assert.Contains(t, graph, "colorchannelmixer=aa=0.5")
	// Intro card shows until the body starts, outro card fades in when it
	// ends, both dead center.
	assert.Contains(t, graph, "overlay=(W-w)/2:(H-h)/2:enable='lt(t,2.5)'")
	assert.Contains(t, graph, "fade=t=in:st=32.5:d=2:alpha=1")
	assert.Contains(t, graph, "overlay=(W-w)/2:(H-h)/2:enable='gte(t,32.5)'")
	// The watermark fades in at the body start and never covers the pads.
	assert.Contains(t, graph, "fade=t=in:st=2.5:d=2:alpha=1")
	assert.Contains(t, graph, "overlay=(W-w)/2:0.5*H:enable='between(t,2.5,32.5)'[out]")
}

func TestBuildFilterGraphShortClip(t *testing.T) {
	graph := buildFilterGraph(RenderInput{
		SourceDuration: 10,
		Spec:           DefaultTargetSpec(),
	})

	assert.Contains(t, graph, "trim=duration=10")
	// 10 + 2.5 + 2.5 = 15; outro fade at 12.5 and the watermark window
	// shrinks with the clip.
	assert.Contains(t, graph, "fade=t=out:st=12.5:d=2.5")
	assert.Contains(t, graph, "enable='between(t,2.5,12.5)'")
}

func TestBuildRenderArgs(t *testing.T) {
	args := buildRenderArgs(RenderInput{
		InputPath:      "/scratch/v1_input.mp4",
		LogoPath:       "/cache/logo720.png",
		OutputPath:     "/scratch/v1_processed.mp4",
		SourceDuration: 45,
		Spec:           DefaultTargetSpec(),
	})
	joined := strings.Join(args, " ")

	assert.Equal(t, "-y", args[0])
	assert.Contains(t, joined, "-i /scratch/v1_input.mp4")
	assert.Contains(t, joined, "-i /cache/logo720.png")
	assert.Contains(t, joined, "-map [out]")
	assert.Contains(t, joined, "-an")
	assert.Contains(t, joined, "-t 35")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Equal(t, "/scratch/v1_processed.mp4", args[len(args)-1])
}
