package catalog

import (
	"fmt"
	"time"
)

type (
	// FailedRequestError is a terminal failure: the catalog answered
	// with a non-OK, non-throttle status. No retry is performed.
	FailedRequestError struct {
		httpCode int
		body     string
	}

	// ThrottledError indicates the catalog rate-limited the call and
	// requested a wait before the next attempt.
	ThrottledError struct {
		endpoint string
		wait     time.Duration
	}

	// TimeoutError indicates a single attempt exceeded the configured
	// request timeout.
	TimeoutError struct {
		endpoint string
	}

	// RetryLimitError is raised once the retry budget for a single
	// logical call has been exhausted. The most recent underlying
	// failure is retained as the cause.
	RetryLimitError struct {
		endpoint string
		attempts int
		cause    error
	}

	UnknownRequestError struct{ reason string }
)

func (err *FailedRequestError) Error() string {
	return fmt.Sprintf("catalog request failure (HTTP %d): %s", err.httpCode, err.body)
}

func (err *FailedRequestError) StatusCode() int { return err.httpCode }

func (err *ThrottledError) Error() string {
	return fmt.Sprintf("catalog throttled call to %s (retry after %s)", err.endpoint, err.wait)
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("catalog call to %s timed out", err.endpoint)
}

func (err *RetryLimitError) Error() string {
	return fmt.Sprintf("catalog call to %s abandoned after %d attempts: %s", err.endpoint, err.attempts, err.cause.Error())
}

func (err *RetryLimitError) Unwrap() error { return err.cause }

func (err *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown error occurred while communicating with catalog: %s", err.reason)
}
