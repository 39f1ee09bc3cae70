package apperrors

import (
	"errors"
	"fmt"
)

// Business-rule failures. Handlers translate these into HTTP status codes;
// anything else that escapes a service is treated as an internal error.
var (
	ErrNotFound           = errors.New("account not found")
	ErrConflict           = errors.New("account already exists")
	ErrDeviceLimitReached = errors.New("device limit reached")
	ErrInvalidOTP         = errors.New("invalid or expired OTP")
	ErrSendFailed         = errors.New("failed to send OTP")
)

// RateLimitError reports a cooldown or window-cap violation together with how
// long the caller has to wait before retrying.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("OTP send limit exceeded, retry in %d seconds", e.RetryAfterSeconds)
}

// NewRateLimit rounds the wait up to whole seconds, never below one.
func NewRateLimit(retryAfterSeconds int) *RateLimitError {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &RateLimitError{RetryAfterSeconds: retryAfterSeconds}
}

// IsRateLimited extracts the retry hint when err is a RateLimitError.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
