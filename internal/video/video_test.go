package video

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &Video{
		ID:       id,
		Title:    "clip",
		InputKey: "uploads/" + id + ".mp4",
	}))
}

func TestLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")

	require.NoError(t, s.MarkProcessing(ctx, "v1"))
	require.NoError(t, s.SetDuration(ctx, "v1", 45.2))
	require.NoError(t, s.MarkProcessed(ctx, "v1", "processed/v1.mp4", 35.0))

	v, err := s.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, v.Status)
	assert.Equal(t, "processed/v1.mp4", v.OutputKey)
	assert.Equal(t, 45.2, v.DurationSeconds)
	assert.Equal(t, 35.0, v.ProcessedDuration)
	assert.True(t, v.Status.Terminal())
}

func TestMarkProcessingIsRerunSafe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")

	require.NoError(t, s.MarkProcessing(ctx, "v1"))
	// A redelivered lease marks processing again before rerunning.
	require.NoError(t, s.MarkProcessing(ctx, "v1"))
}

func TestTerminalStatesRejectUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")

	require.NoError(t, s.MarkProcessing(ctx, "v1"))
	require.NoError(t, s.MarkProcessed(ctx, "v1", "processed/v1.mp4", 30))

	assert.ErrorIs(t, s.MarkProcessing(ctx, "v1"), ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkFailed(ctx, "v1", "late failure"), ErrInvalidTransition)
	assert.ErrorIs(t, s.Reset(ctx, "v1"), ErrInvalidTransition)
}

func TestMarkProcessedRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")

	assert.ErrorIs(t, s.MarkProcessed(ctx, "v1", "processed/v1.mp4", 30), ErrInvalidTransition)
	assert.ErrorIs(t, s.MarkFailed(ctx, "v1", "boom"), ErrInvalidTransition)
}

func TestFailureReasonClamped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")
	require.NoError(t, s.MarkProcessing(ctx, "v1"))

	long := strings.Repeat("x", 2000)
	require.NoError(t, s.MarkFailed(ctx, "v1", long))

	v, err := s.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, v.FailureReason, maxReasonLen)
}

func TestResetClearsFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "v1")
	require.NoError(t, s.MarkProcessing(ctx, "v1"))
	require.NoError(t, s.MarkFailed(ctx, "v1", "codec error"))

	require.NoError(t, s.Reset(ctx, "v1"))

	v, err := s.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, v.Status)
	assert.Empty(t, v.FailureReason)
	assert.Empty(t, v.OutputKey)
}

func TestGetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
