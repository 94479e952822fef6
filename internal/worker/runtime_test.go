package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/reelpress/internal/apperror"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/queue"
)

func testCtx() context.Context {
	return logger.WithLogger(context.Background(), logger.NewTestLogger())
}

// fakeQueue hands out a fixed set of leases once and records acks.
type fakeQueue struct {
	mu     sync.Mutex
	leases []*queue.Lease
	acked  []string
}

func (q *fakeQueue) LeaseNext(ctx context.Context) (*queue.Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.leases) == 0 {
		// Mimic a poll that waits and comes back empty.
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Millisecond):
		}
		return nil, nil
	}
	lease := q.leases[0]
	q.leases = q.leases[1:]
	return lease, nil
}

func (q *fakeQueue) Ack(ctx context.Context, lease *queue.Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, lease.ID)
	return nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.leases)), nil
}

func (q *fakeQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

func lease(id, videoID string) *queue.Lease {
	return &queue.Lease{ID: id, Message: queue.Message{JobID: "j-" + videoID, VideoID: videoID}, Deliveries: 1}
}

func runUntil(t *testing.T, rt *Runtime, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(testCtx())
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not drain after cancel")
	}
}

func TestRuntimeAcksSuccessfulJobs(t *testing.T) {
	q := &fakeQueue{leases: []*queue.Lease{lease("1-0", "v1"), lease("2-0", "v2")}}
	var mu sync.Mutex
	var handled []string
	rt := NewRuntime(q, func(ctx context.Context, msg queue.Message) error {
		mu.Lock()
		handled = append(handled, msg.VideoID)
		mu.Unlock()
		return nil
	}, Config{Concurrency: 2, JobTimeout: time.Second})

	runUntil(t, rt, func() bool { return len(q.ackedIDs()) == 2 })

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"v1", "v2"}, handled)
	assert.ElementsMatch(t, []string{"1-0", "2-0"}, q.ackedIDs())
}

func TestRuntimeAcksTerminalFailures(t *testing.T) {
	q := &fakeQueue{leases: []*queue.Lease{lease("1-0", "v1")}}
	rt := NewRuntime(q, func(ctx context.Context, msg queue.Message) error {
		return apperror.New(apperror.KindValidation, "bad input")
	}, Config{Concurrency: 1, JobTimeout: time.Second})

	runUntil(t, rt, func() bool { return len(q.ackedIDs()) == 1 })
}

func TestRuntimeDoesNotAckRetryableFailures(t *testing.T) {
	q := &fakeQueue{leases: []*queue.Lease{lease("1-0", "v1")}}
	var handledOnce sync.WaitGroup
	handledOnce.Add(1)
	var once sync.Once
	rt := NewRuntime(q, func(ctx context.Context, msg queue.Message) error {
		once.Do(handledOnce.Done)
		return apperror.New(apperror.KindTransient, "redis blinked")
	}, Config{Concurrency: 1, JobTimeout: time.Second})

	ctx, cancel := context.WithCancel(testCtx())
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	handledOnce.Wait()
	cancel()
	<-done

	assert.Empty(t, q.ackedIDs(), "retryable failure must leave the lease pending")
}

func TestRuntimeSurvivesPanicWithoutAcking(t *testing.T) {
	q := &fakeQueue{leases: []*queue.Lease{lease("1-0", "v1"), lease("2-0", "v2")}}
	rt := NewRuntime(q, func(ctx context.Context, msg queue.Message) error {
		if msg.VideoID == "v1" {
			panic("boom")
		}
		return nil
	}, Config{Concurrency: 1, JobTimeout: time.Second})

	// The slot keeps going past the panic, but the panicked delivery is
	// not acked: nothing terminal was committed for it, so it must come
	// back around when its lease expires.
	runUntil(t, rt, func() bool { return len(q.ackedIDs()) == 1 })
	assert.Equal(t, []string{"2-0"}, q.ackedIDs())
}

func TestRuntimeStopsLeasingOnCancel(t *testing.T) {
	q := &fakeQueue{}
	rt := NewRuntime(q, func(ctx context.Context, msg queue.Message) error { return nil },
		Config{Concurrency: 3, JobTimeout: time.Second})

	ctx, cancel := context.WithCancel(testCtx())
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not stop after cancel")
	}
}
