package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// DispatchError classifies a failed callback attempt. Retryable failures go
// back through the scheduled-retry path; everything else finalizes the job.
type DispatchError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Cause      error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "callback dispatch error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable reports whether a failed attempt should be rescheduled.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// An explicit classification wins over whatever the cause chain holds.
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return dispatchErr.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
