package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrDisabled is returned when the capability is switched off. No state
	// is touched.
	ErrDisabled = errors.New("capability disabled")

	// ErrQueued signals overflow: the request was queued and its Result will
	// only be delivered on the published stream.
	ErrQueued = errors.New("request queued")

	// ErrCapacityExceeded is returned instead of ErrQueued when async queueing
	// is turned off.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDetectionFailed matches any *DetectionError.
	ErrDetectionFailed = errors.New("detection failed")

	// ErrNoResults is returned when a detection yields nothing and the
	// pipeline is configured to treat that as failure.
	ErrNoResults = errors.New("no results")

	// ErrTimeout is returned when the detector exceeds the request deadline.
	ErrTimeout = errors.New("detection timed out")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrClosed is returned after the pipeline has been shut down.
	ErrClosed = errors.New("pipeline closed")
)

// QueuedError carries the id of a request that was queued.
type QueuedError struct {
	RequestID string
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("request %s queued", e.RequestID)
}

// Is makes errors.Is(err, ErrQueued) hold.
func (e *QueuedError) Is(target error) bool { return target == ErrQueued }

// DetectionError wraps a Detector failure.
type DetectionError struct {
	Reason string
	Cause  error
}

func (e *DetectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("detection failed: %s: %v", e.Reason, e.Cause)
	}
	return "detection failed: " + e.Reason
}

func (e *DetectionError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrDetectionFailed) hold.
func (e *DetectionError) Is(target error) bool { return target == ErrDetectionFailed }

// Reason returns a short metrics label for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoResults):
		return "no_results"
	case errors.Is(err, ErrDetectionFailed):
		return "detection_failed"
	case errors.Is(err, ErrQueued):
		return "queued"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrDisabled):
		return "disabled"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
