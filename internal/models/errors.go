package models

import (
	"errors"
	"fmt"
	"time"
)

// Validation and lifecycle errors shared across services and handlers.
var (
	ErrSlideCountRange     = errors.New("slideCount must be between 1 and 20")
	ErrPromptRequired      = errors.New("prompt must not be empty")
	ErrModelNotAllowed     = errors.New("requested model is not allowed")
	ErrUpstreamUnavailable = errors.New("upstream model is unavailable")
	ErrProviderUnknown     = errors.New("unknown image provider")
	ErrProviderUnavailable = errors.New("image provider is not available")
	ErrJobNotFound         = errors.New("job not found")
	ErrJobLimitReached     = errors.New("too many active jobs")
	ErrResultNotReady      = errors.New("job result is not ready")
	ErrEditInvalid         = errors.New("invalid edit request")
	ErrTokenInvalid        = errors.New("token is invalid")
	ErrTokenExpired        = errors.New("token has expired")
	ErrTokenMalformed      = errors.New("token is malformed")
)

// RateLimitedError signals an upstream 429 together with the wait the
// upstream asked for, so handlers can surface a Retry-After header.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AsRateLimited unwraps err into a RateLimitedError if one is in the chain.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
