package outline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"slides-server/internal/models"
)

// upstreamStatusError keeps the HTTP status of a failed upstream call
// reachable through the error chain.
type upstreamStatusError struct {
	status int
	cause  error
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.status, e.cause)
}

func (e *upstreamStatusError) Unwrap() error {
	return e.cause
}

// UpstreamStatus extracts the HTTP status from an upstream failure chain.
func UpstreamStatus(err error) (int, bool) {
	var se *upstreamStatusError
	if errors.As(err, &se) {
		return se.status, true
	}
	return 0, false
}

// retryable reports whether a generation failure is transient. Timeouts,
// connection drops, 5xx and 429 responses qualify; other 4xx responses
// signal a request problem that a retry cannot fix.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if _, ok := models.AsRateLimited(err); ok {
		return true
	}
	if status, ok := UpstreamStatus(err); ok {
		return status == 0 || status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Transport failures without a status are treated as transient.
	return true
}
