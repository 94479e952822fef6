// Package worker drives the lease/process/ack loop around the pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/metrics"
	"github.com/reelworks/reelpress/internal/queue"
	"github.com/reelworks/reelpress/internal/tracing"
)

// Queue is the slice of the queue client the runtime needs.
type Queue interface {
	LeaseNext(ctx context.Context) (*queue.Lease, error)
	Ack(ctx context.Context, lease *queue.Lease) error
	Depth(ctx context.Context) (int64, error)
}

// Handler processes one message. A retryable error leaves the lease
// unacked; any other outcome acks it.
type Handler func(ctx context.Context, msg queue.Message) error

type Config struct {
	Concurrency int
	JobTimeout  time.Duration
}

// Runtime runs a fixed pool of worker slots against one queue. Slots stop
// leasing when the run context is cancelled; jobs already in flight run to
// completion on a detached context bounded by the job timeout.
type Runtime struct {
	queue  Queue
	handle Handler
	cfg    Config
}

func NewRuntime(q Queue, handle Handler, cfg Config) *Runtime {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runtime{queue: q, handle: handle, cfg: cfg}
}

// Run blocks until the context is cancelled and every slot has drained.
func (r *Runtime) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("worker runtime starting", "concurrency", r.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			r.runSlot(ctx, slot)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.reportDepth(ctx)
	}()

	wg.Wait()
	log.Info("worker runtime stopped")
}

func (r *Runtime) runSlot(ctx context.Context, slot int) {
	ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("slot", slot))
	log := logger.FromContext(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		lease, err := r.queue.LeaseNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("lease failed", "error", err.Error())
			// Back off so a down Redis does not spin the loop.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if lease == nil {
			continue
		}
		r.runJob(ctx, lease)
	}
}

// runJob executes one delivery. The job context is detached from the slot
// context so shutdown does not abort work mid-render; the job timeout is
// the only bound.
func (r *Runtime) runJob(ctx context.Context, lease *queue.Lease) {
	msg := lease.Message

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.JobTimeout)
	defer cancel()

	jobCtx = tracing.ExtractTrace(jobCtx, msg.Trace)
	jobCtx, span := tracing.StartJobSpan(jobCtx, msg.JobID, msg.VideoID, lease.Deliveries)
	defer span.End()

	jobCtx = logger.WithJobID(jobCtx, msg.JobID)
	jobCtx = logger.WithVideoID(jobCtx, msg.VideoID)
	jobLog := logger.FromContext(jobCtx).With("delivery", lease.Deliveries)
	jobCtx = logger.WithLogger(jobCtx, jobLog)
	jobLog.Info("job leased")

	metrics.WorkersBusy.Inc()
	err := r.safeHandle(jobCtx, msg)
	metrics.WorkersBusy.Dec()

	if err != nil && apperror.IsRetryable(err) {
		span.SetStatus(codes.Error, err.Error())
		jobLog.Warn("lease released for redelivery", "error", err.Error())
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	if ackErr := r.queue.Ack(jobCtx, lease); ackErr != nil {
		jobLog.Error("ack failed", "error", ackErr.Error())
		return
	}
	jobLog.Info("job acked")
}

// safeHandle keeps a handler panic from taking the slot down. The handler
// is expected to commit a terminal state before returning a non-retryable
// error; a panic that escapes it has committed nothing, so the error is
// retryable and the lease stays pending for redelivery rather than being
// acked with the record stranded mid-flight.
func (r *Runtime) safeHandle(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperror.Newf(apperror.KindTransient, "handler panic: %v", rec)
			logger.FromContext(ctx).Error("handler panicked", "panic", fmt.Sprint(rec))
		}
	}()
	return r.handle(ctx, msg)
}

func (r *Runtime) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := r.queue.Depth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}
