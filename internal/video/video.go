package video

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a video record.
//
//	uploaded --> processing --> processed
//	                       \-> failed
//
// Redelivery of an expired lease may observe a record still in processing;
// moving processing -> processing is therefore legal. processed and failed
// are terminal, except that a failed video may be reset to uploaded for
// resubmission.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further processing will happen for this
// status without operator intervention.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

func (s Status) valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// canTransition encodes the legal status moves.
func canTransition(from, to Status) bool {
	switch from {
	case StatusUploaded:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing || to == StatusProcessed || to == StatusFailed
	case StatusFailed:
		return to == StatusUploaded
	default:
		return false
	}
}

var (
	ErrNotFound          = errors.New("video: not found")
	ErrInvalidTransition = errors.New("video: invalid status transition")
)

// maxReasonLen bounds stored failure reasons so an unbounded ffmpeg stderr
// dump cannot bloat the row.
const maxReasonLen = 512

func clampReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	return reason[:maxReasonLen]
}

// Video is the persistent record for one uploaded clip. OutputKey and
// ProcessedDuration are set only when the record reaches processed;
// FailureReason only when it reaches failed.
type Video struct {
	ID                string
	Title             string
	OwnerID           string
	InputKey          string
	OutputKey         string
	Status            Status
	DurationSeconds   float64
	ProcessedDuration float64
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store persists video records. All mutating methods bump UpdatedAt and
// enforce the status transition rules above.
type Store interface {
	Create(ctx context.Context, v *Video) error
	Get(ctx context.Context, id string) (*Video, error)

	// MarkProcessing moves the record into processing. Legal from uploaded
	// and, for redelivered jobs, from processing.
	MarkProcessing(ctx context.Context, id string) error

	// SetDuration records the probed duration of the source clip.
	SetDuration(ctx context.Context, id string, seconds float64) error

	// MarkProcessed commits the successful outcome: terminal status, output
	// key and rendered duration in one update.
	MarkProcessed(ctx context.Context, id, outputKey string, duration float64) error

	// MarkFailed commits the failure outcome with a bounded reason.
	MarkFailed(ctx context.Context, id, reason string) error

	// Reset returns a failed record to uploaded for resubmission, clearing
	// the failure reason and any stale output key.
	Reset(ctx context.Context, id string) error
}
