package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type rateLimitError struct {
	retryable bool
}

func (e *rateLimitError) Error() string { return "rate limited" }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

// backoffUnit is the first retry delay; tests shrink it.
var backoffUnit = time.Second

func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		// Don't retry auth errors
		var ae *authError
		if errors.As(lastErr, &ae) {
			return lastErr
		}

		// Only retry rate limit errors
		var rl *rateLimitError
		if !errors.As(lastErr, &rl) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * backoffUnit
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// classifyStatus maps an HTTP status from a provider SDK error onto the
// retry/auth error types. It returns nil for statuses that need no mapping.
func classifyStatus(provider string, status int, err error) error {
	switch status {
	case http.StatusTooManyRequests:
		return &rateLimitError{retryable: true}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &authError{message: fmt.Sprintf("%s: %v", provider, err)}
	default:
		return nil
	}
}
