package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/branding"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/media"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/storage"
	"github.com/reelworks/reelpress/internal/video"
)

func testCtx() context.Context {
	return logger.WithLogger(context.Background(), logger.NewTestLogger())
}

type fixture struct {
	videos  *video.MemoryStore
	store   *storage.MemoryStorage
	scratch string
	proc    *Processor
}

// probeByPath reports a fixed duration for inputs and another for rendered
// outputs, keyed on the scratch naming convention.
func probeByPath(inputSeconds, outputSeconds float64) media.ProbeFunc {
	return func(ctx context.Context, path string) (media.ProbeResult, error) {
		d := inputSeconds
		if strings.HasSuffix(path, "_processed.mp4") {
			d = outputSeconds
		}
		return media.ProbeResult{DurationSeconds: d, Width: 1280, Height: 720, Codec: "h264"}, nil
	}
}

func renderBytes(n int) media.RenderFunc {
	return func(ctx context.Context, in media.RenderInput) error {
		return os.WriteFile(in.OutputPath, bytes.Repeat([]byte{0xAB}, n), 0o644)
	}
}

func newFixture(t *testing.T, probe media.ProbeFunc, render media.RenderFunc) *fixture {
	t.Helper()
	ctx := testCtx()

	videos := video.NewMemoryStore()
	store := storage.NewMemoryStorage()
	_, err := store.Put(ctx, "resources/logo720.png", strings.NewReader("logo"), "image/png", 4)
	require.NoError(t, err)

	scratch := t.TempDir()
	brand := branding.New(store, "resources/logo720.png", t.TempDir(), true)
	proc := NewProcessor(videos, store, probe, render, brand, Config{
		ScratchDir:     scratch,
		MinOutputBytes: 1000,
	})
	return &fixture{videos: videos, store: store, scratch: scratch, proc: proc}
}

func (f *fixture) seed(t *testing.T, id string) queue.Message {
	t.Helper()
	ctx := testCtx()
	key := "uploads/" + id + ".mp4"
	_, err := f.store.Put(ctx, key, strings.NewReader("source-bytes"), "video/mp4", 12)
	require.NoError(t, err)
	require.NoError(t, f.videos.Create(ctx, &video.Video{ID: id, Title: id, InputKey: key}))
	return queue.Message{JobID: "j-" + id, VideoID: id, InputKey: key}
}

func (f *fixture) scratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessSuccess(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	msg := f.seed(t, "v1")

	require.NoError(t, f.proc.Process(ctx, msg))

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessed, v.Status)
	assert.Equal(t, "processed/v1.mp4", v.OutputKey)
	assert.Equal(t, 45.0, v.DurationSeconds)
	assert.Equal(t, 35.0, v.ProcessedDuration)

	data, ok := f.store.Object("processed/v1.mp4")
	require.True(t, ok)
	assert.Len(t, data, 2048)

	f.scratchEmpty(t)
}

func TestProcessRerunOverwritesOutput(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	msg := f.seed(t, "v1")

	// Simulate the first delivery dying after rendering and uploading but
	// before the terminal commit: the record is still processing.
	require.NoError(t, f.videos.MarkProcessing(ctx, "v1"))
	_, err := f.store.Put(ctx, OutputKey("v1"), strings.NewReader("stale"), "video/mp4", 5)
	require.NoError(t, err)

	require.NoError(t, f.proc.Process(ctx, msg))

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessed, v.Status)

	data, ok := f.store.Object(OutputKey("v1"))
	require.True(t, ok)
	assert.Len(t, data, 2048, "rerun must overwrite, not append")
}

func TestProcessSkipsTerminalRecord(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	msg := f.seed(t, "v1")

	require.NoError(t, f.videos.MarkProcessing(ctx, "v1"))
	require.NoError(t, f.videos.MarkProcessed(ctx, "v1", OutputKey("v1"), 35))

	// A redelivered lease for a finished video must be a no-op.
	require.NoError(t, f.proc.Process(ctx, msg))
	_, ok := f.store.Object(OutputKey("v1"))
	assert.False(t, ok, "skip path must not touch storage")
}

func TestProcessUnknownVideoAcks(t *testing.T) {
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	err := f.proc.Process(testCtx(), queue.Message{JobID: "j", VideoID: "ghost"})
	assert.NoError(t, err)
}

func TestProcessMissingInputFails(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	require.NoError(t, f.videos.Create(ctx, &video.Video{ID: "v1", InputKey: "uploads/v1.mp4"}))

	err := f.proc.Process(ctx, queue.Message{JobID: "j", VideoID: "v1", InputKey: "uploads/v1.mp4"})
	require.NoError(t, err, "permanent failures are committed, not retried")

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, v.Status)
	assert.Contains(t, v.FailureReason, "missing")
}

func TestProcessTinyRenderIsRejected(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(10))
	msg := f.seed(t, "v1")

	require.NoError(t, f.proc.Process(ctx, msg))

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, v.Status)
	assert.Contains(t, v.FailureReason, "below minimum")

	_, ok := f.store.Object(DiagnosticKey("v1"))
	assert.True(t, ok, "rejected render should be parked for inspection")
	_, ok = f.store.Object(OutputKey("v1"))
	assert.False(t, ok)
	f.scratchEmpty(t)
}

func TestProcessDurationMismatchIsRejected(t *testing.T) {
	ctx := testCtx()
	// Render claims to last 12s when 35s is expected.
	f := newFixture(t, probeByPath(45, 12), renderBytes(2048))
	msg := f.seed(t, "v1")

	require.NoError(t, f.proc.Process(ctx, msg))

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, v.Status)
	assert.Contains(t, v.FailureReason, "expected 35.00")
	_, ok := f.store.Object(DiagnosticKey("v1"))
	assert.True(t, ok)
}

func TestProcessRenderPanicCommitsFailure(t *testing.T) {
	ctx := testCtx()
	render := func(ctx context.Context, in media.RenderInput) error {
		panic("codec library blew up")
	}
	f := newFixture(t, probeByPath(45, 35), render)
	msg := f.seed(t, "v1")

	// A panic must surface as a committed terminal failure, never as an
	// ackable success with the record stuck in processing.
	require.NoError(t, f.proc.Process(ctx, msg))

	v, err := f.videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusFailed, v.Status)
	assert.Contains(t, v.FailureReason, "panic")
	assert.Empty(t, v.OutputKey)
	f.scratchEmpty(t)
}

// partialFetchStorage writes half an object to the destination and then
// reports a backend error, imitating a download cut off mid-stream.
type partialFetchStorage struct {
	*storage.MemoryStorage
}

func (s *partialFetchStorage) FetchToLocal(ctx context.Context, key, localPath string) error {
	obj, ok := s.Object(key)
	if !ok {
		return storage.ErrNotFound
	}
	if err := os.WriteFile(localPath, obj[:len(obj)/2], 0o644); err != nil {
		return err
	}
	return assert.AnError
}

func TestProcessFetchFailureLeavesNoScratch(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	msg := f.seed(t, "v1")

	proc := NewProcessor(f.videos, &partialFetchStorage{MemoryStorage: f.store},
		probeByPath(45, 35), renderBytes(2048),
		branding.New(f.store, "resources/logo720.png", t.TempDir(), true),
		Config{ScratchDir: f.scratch, MinOutputBytes: 1000})

	err := proc.Process(ctx, msg)
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
	f.scratchEmpty(t)
}

func TestProcessTransientUploadErrorRetries(t *testing.T) {
	ctx := testCtx()
	f := newFixture(t, probeByPath(45, 35), renderBytes(2048))
	msg := f.seed(t, "v1")
	f.store.FailOn["stat"] = assert.AnError

	err := f.proc.Process(ctx, msg)
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))

	v, getErr := f.videos.Get(ctx, "v1")
	require.NoError(t, getErr)
	assert.Equal(t, video.StatusProcessing, v.Status, "no terminal commit on a retryable error")
	f.scratchEmpty(t)
}

func TestProcessUsesLocalPathWhenAvailable(t *testing.T) {
	ctx := testCtx()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = local.Put(ctx, "resources/logo720.png", strings.NewReader("logo"), "image/png", 4)
	require.NoError(t, err)
	_, err = local.Put(ctx, "uploads/v1.mp4", strings.NewReader("source"), "video/mp4", 6)
	require.NoError(t, err)

	videos := video.NewMemoryStore()
	require.NoError(t, videos.Create(ctx, &video.Video{ID: "v1", InputKey: "uploads/v1.mp4"}))

	scratch := t.TempDir()
	var renderedFrom string
	render := func(ctx context.Context, in media.RenderInput) error {
		renderedFrom = in.InputPath
		return os.WriteFile(in.OutputPath, bytes.Repeat([]byte{1}, 2048), 0o644)
	}
	proc := NewProcessor(videos, local, probeByPath(45, 35), render,
		branding.New(local, "resources/logo720.png", t.TempDir(), true),
		Config{ScratchDir: scratch, MinOutputBytes: 1000})

	require.NoError(t, proc.Process(ctx, queue.Message{JobID: "j", VideoID: "v1", InputKey: "uploads/v1.mp4"}))

	// The source must be read in place, never copied into scratch.
	assert.NotEqual(t, filepath.Join(scratch, "v1_input.mp4"), renderedFrom)
	assert.FileExists(t, renderedFrom)

	v, err := videos.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, video.StatusProcessed, v.Status)
}
