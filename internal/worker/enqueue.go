package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/metrics"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/tracing"
	"github.com/reelworks/reelpress/internal/video"
)

// Publisher is the producer half of the queue client.
type Publisher interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
}

// EnqueueVideo publishes a processing job for a video record. A failed
// record is reset to uploaded first so resubmission reruns the pipeline; a
// record already processed or processing is rejected.
func EnqueueVideo(ctx context.Context, pub Publisher, videos video.Store, videoID string) (string, error) {
	v, err := videos.Get(ctx, videoID)
	if err != nil {
		return "", err
	}
	switch v.Status {
	case video.StatusFailed:
		if err := videos.Reset(ctx, v.ID); err != nil {
			return "", err
		}
	case video.StatusUploaded:
	default:
		return "", apperror.Newf(apperror.KindValidation,
			"video %s is %s, not enqueueable", v.ID, v.Status)
	}

	ctx, span := tracing.StartEnqueueSpan(ctx, v.ID)
	defer span.End()

	jobID := uuid.NewString()
	id, err := pub.Enqueue(ctx, queue.Message{
		JobID:      jobID,
		VideoID:    v.ID,
		InputKey:   v.InputKey,
		EnqueuedAt: time.Now().UTC(),
		Trace:      tracing.InjectTrace(ctx),
	})
	if err != nil {
		return "", fmt.Errorf("enqueue video %s: %w", v.ID, err)
	}
	metrics.JobsEnqueued.Inc()
	return id, nil
}
