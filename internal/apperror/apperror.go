package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure and decides what happens to the record
// and the queue message that produced it.
type Kind string

const (
	// KindNotFound: the record or a storage object is missing. Terminal.
	KindNotFound Kind = "not_found"

	// KindValidation: the input or output failed a probe (no video stream,
	// non-positive duration, undersized file). Terminal.
	KindValidation Kind = "validation"

	// KindTransient: the storage backend, queue, or record store was
	// temporarily unreachable. The job must not be acked so the lease
	// expires and the message is redelivered.
	KindTransient Kind = "transient"

	// KindCorruption: the persisted artifact does not match what was
	// rendered locally. Terminal, and evidence of a storage-layer problem.
	KindCorruption Kind = "corruption"

	// KindConfig: a required configuration value is missing or invalid.
	// Raised at process start, never during a job.
	KindConfig Kind = "config"

	// KindInternal: an unexpected fault (panic, programming error). Terminal.
	KindInternal Kind = "internal"
)

type Error struct {
	Kind     Kind
	Message  string
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Internal: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the job that produced err should be left
// un-acked so the queue redelivers it after the lease expires. Only
// transient faults are retryable; everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}

// Reason returns a bounded-length failure reason suitable for persisting on
// the video record.
func Reason(err error, limit int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if limit > 0 && len(msg) > limit {
		msg = msg[:limit]
	}
	return msg
}
