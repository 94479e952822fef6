// Package pipeline runs one leased job end to end: materialize the input,
// probe it, render the branded composition, verify the artifact, upload it,
// and commit the terminal status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/branding"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/media"
	"github.com/reelworks/reelpress/internal/metrics"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/storage"
	"github.com/reelworks/reelpress/internal/video"
)

// OutputKey is the deterministic location of a video's rendered artifact.
// Reruns of the same job overwrite rather than accumulate.
func OutputKey(videoID string) string {
	return "processed/" + videoID + ".mp4"
}

// DiagnosticKey is where a rejected render is parked for inspection.
func DiagnosticKey(videoID string) string {
	return "diagnostics/" + videoID + "_corrupt.mp4"
}

// durationTolerance absorbs container rounding when comparing the rendered
// duration against the expected composition.
const durationTolerance = 1.5

type Config struct {
	ScratchDir     string
	MinOutputBytes int64
	Spec           media.TargetSpec
}

// Processor executes jobs. Errors returned from Process are classified:
// a retryable error means the lease should not be acked, anything else has
// already been committed as a terminal outcome.
type Processor struct {
	videos   video.Store
	store    storage.Storage
	probe    media.ProbeFunc
	render   media.RenderFunc
	branding *branding.Provider
	cfg      Config
}

func NewProcessor(videos video.Store, store storage.Storage, probe media.ProbeFunc, render media.RenderFunc, brand *branding.Provider, cfg Config) *Processor {
	if cfg.Spec == (media.TargetSpec{}) {
		cfg.Spec = media.DefaultTargetSpec()
	}
	return &Processor{
		videos:   videos,
		store:    store,
		probe:    probe,
		render:   render,
		branding: brand,
		cfg:      cfg,
	}
}

// Process runs the pipeline for one message. The video record is the source
// of truth: a record already in a terminal state short-circuits without
// touching storage, which makes redelivery of an acked-too-late lease a
// no-op.
func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	log := logger.FromContext(ctx)

	v, err := p.videos.Get(ctx, msg.VideoID)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			// Nothing to update; ack the orphan so it stops circulating.
			log.Warn("dropping message for unknown video")
			return nil
		}
		return apperror.Wrap(err, apperror.KindTransient, "load video record")
	}
	if v.Status.Terminal() {
		log.Info("video already in terminal state, skipping", "status", string(v.Status))
		return nil
	}

	if err := p.videos.MarkProcessing(ctx, v.ID); err != nil {
		return apperror.Wrap(err, apperror.KindTransient, "mark processing")
	}

	outcome := "processed"
	start := time.Now()
	err = p.runRecovered(ctx, v)
	if err != nil {
		if apperror.IsRetryable(err) {
			metrics.JobsRetried.Inc()
			log.Warn("job failed, will retry", "error", err.Error())
			return err
		}
		outcome = "failed"
		reason := apperror.Reason(err, 512)
		log.Error("job failed permanently", "error", err.Error())
		if markErr := p.videos.MarkFailed(ctx, v.ID, reason); markErr != nil {
			// Could not commit the failure; keep the lease so a healthy
			// worker can.
			return apperror.Wrap(markErr, apperror.KindTransient, "mark failed")
		}
	}
	metrics.JobsProcessed.WithLabelValues(outcome).Inc()
	metrics.JobDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return nil
}

// runRecovered converts a panic anywhere in the job body into an internal
// error so it takes the same road as any other terminal failure: the record
// is marked failed before the lease becomes ackable. A panic that escaped
// past MarkFailed would strand the record in processing with its message
// gone.
func (p *Processor) runRecovered(ctx context.Context, v *video.Video) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).Error("pipeline panicked", "panic", fmt.Sprint(rec))
			err = apperror.Newf(apperror.KindInternal, "pipeline panic: %v", rec)
		}
	}()
	return p.run(ctx, v)
}

// run performs the fallible middle of the pipeline. Scratch files are
// removed on every path out.
func (p *Processor) run(ctx context.Context, v *video.Video) error {
	log := logger.FromContext(ctx)

	inputPath, cleanupInput, err := p.materializeInput(ctx, v)
	if err != nil {
		return err
	}
	defer cleanupInput()

	probeStart := time.Now()
	info, err := p.probe(ctx, inputPath)
	metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())
	if err != nil {
		return err
	}
	if err := p.videos.SetDuration(ctx, v.ID, info.DurationSeconds); err != nil {
		return apperror.Wrap(err, apperror.KindTransient, "record source duration")
	}
	log.Info("probed input",
		"duration_seconds", info.DurationSeconds,
		"width", info.Width,
		"height", info.Height,
		"codec", info.Codec)

	logoPath, err := p.branding.LogoPath(ctx)
	if err != nil {
		return err
	}

	outputPath := filepath.Join(p.cfg.ScratchDir, v.ID+"_processed.mp4")
	defer removeQuietly(outputPath)

	renderStart := time.Now()
	err = p.render(ctx, media.RenderInput{
		InputPath:      inputPath,
		LogoPath:       logoPath,
		OutputPath:     outputPath,
		SourceDuration: info.DurationSeconds,
		Spec:           p.cfg.Spec,
	})
	metrics.StageDuration.WithLabelValues("render").Observe(time.Since(renderStart).Seconds())
	if err != nil {
		return err
	}

	rendered, err := p.verifyOutput(ctx, v, outputPath, info.DurationSeconds)
	if err != nil {
		return err
	}

	uploadStart := time.Now()
	size, err := p.upload(ctx, v.ID, outputPath)
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(uploadStart).Seconds())
	if err != nil {
		return err
	}
	log.Info("uploaded rendered output", "key", OutputKey(v.ID), "bytes", size)

	if err := p.videos.MarkProcessed(ctx, v.ID, OutputKey(v.ID), rendered.DurationSeconds); err != nil {
		return apperror.Wrap(err, apperror.KindTransient, "mark processed")
	}
	return nil
}

// materializeInput puts the source bytes on local disk. Backends that
// already hold the object on this filesystem are referenced in place; the
// cleanup func then keeps its hands off the stored object.
func (p *Processor) materializeInput(ctx context.Context, v *video.Video) (string, func(), error) {
	if lp, ok := p.store.(storage.LocalPather); ok {
		if path, found := lp.LocalPath(v.InputKey); found {
			return path, func() {}, nil
		}
	}

	inputPath := filepath.Join(p.cfg.ScratchDir, v.ID+"_input.mp4")
	fetchStart := time.Now()
	err := p.store.FetchToLocal(ctx, v.InputKey, inputPath)
	metrics.StageDuration.WithLabelValues("fetch").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		// A failed fetch may leave a partial file behind; do not let it
		// sit in scratch until the sweeper finds it.
		removeQuietly(inputPath)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, apperror.Wrap(err, apperror.KindNotFound,
				fmt.Sprintf("input object %q missing", v.InputKey))
		}
		return "", nil, apperror.Wrap(err, apperror.KindTransient, "fetch input")
	}
	return inputPath, func() { removeQuietly(inputPath) }, nil
}

// verifyOutput rejects renders that are implausibly small or whose duration
// disagrees with the expected composition. Rejected artifacts are parked
// under a diagnostic key before the job is failed.
func (p *Processor) verifyOutput(ctx context.Context, v *video.Video, outputPath string, sourceDuration float64) (media.ProbeResult, error) {
	stat, err := os.Stat(outputPath)
	if err != nil || stat.Size() < p.cfg.MinOutputBytes {
		size := int64(0)
		if err == nil {
			size = stat.Size()
		}
		p.parkDiagnostic(ctx, v.ID, outputPath)
		return media.ProbeResult{}, apperror.Newf(apperror.KindValidation,
			"rendered output for %s is %d bytes, below minimum %d", v.ID, size, p.cfg.MinOutputBytes)
	}

	rendered, err := p.probe(ctx, outputPath)
	if err != nil {
		p.parkDiagnostic(ctx, v.ID, outputPath)
		return media.ProbeResult{}, apperror.Wrap(err, apperror.KindValidation,
			fmt.Sprintf("rendered output for %s is unreadable", v.ID))
	}

	expected := p.cfg.Spec.ComposedSeconds(sourceDuration)
	if diff := rendered.DurationSeconds - expected; diff < -durationTolerance || diff > durationTolerance {
		p.parkDiagnostic(ctx, v.ID, outputPath)
		return media.ProbeResult{}, apperror.Newf(apperror.KindValidation,
			"rendered output for %s lasts %.2fs, expected %.2fs", v.ID, rendered.DurationSeconds, expected)
	}
	return rendered, nil
}

func (p *Processor) upload(ctx context.Context, videoID, outputPath string) (int64, error) {
	f, err := os.Open(outputPath)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.KindInternal, "open rendered output")
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, apperror.Wrap(err, apperror.KindInternal, "stat rendered output")
	}

	key := OutputKey(videoID)
	if _, err := p.store.Put(ctx, key, f, "video/mp4", stat.Size()); err != nil {
		return 0, apperror.Wrap(err, apperror.KindTransient, "upload rendered output")
	}

	remote, err := p.store.Stat(ctx, key)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.KindTransient, "verify uploaded output")
	}
	if remote.Size != stat.Size() {
		// The persisted bytes do not match what was rendered. Remove the
		// partial object so nothing downstream serves it.
		if delErr := p.store.Delete(ctx, key); delErr != nil {
			logger.FromContext(ctx).Warn("could not remove mismatched upload", "key", key, "error", delErr.Error())
		}
		return 0, apperror.Newf(apperror.KindCorruption,
			"uploaded size %d does not match local %d for %s", remote.Size, stat.Size(), key)
	}
	return stat.Size(), nil
}

// parkDiagnostic uploads a rejected render for inspection. Best effort; a
// failure here must not mask the rejection itself.
func (p *Processor) parkDiagnostic(ctx context.Context, videoID, outputPath string) {
	f, err := os.Open(outputPath)
	if err != nil {
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return
	}
	if _, err := p.store.Put(ctx, DiagnosticKey(videoID), f, "video/mp4", stat.Size()); err != nil {
		logger.FromContext(ctx).Warn("could not park diagnostic artifact", "error", err.Error())
	}
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
