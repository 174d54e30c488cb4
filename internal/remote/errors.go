package remote

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Common errors returned by remote clients.
var (
	// ErrNotFound indicates the resource does not exist. For metadata lookups this is a
	// valid terminal outcome, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrAuthError indicates missing or invalid credentials.
	ErrAuthError = errors.New("authentication error")

	// ErrRateLimited indicates the service asked us to slow down.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTransient indicates a network failure, timeout or 5xx that may succeed on retry.
	ErrTransient = errors.New("transient error")

	// ErrMalformedResponse indicates a response that does not match the expected schema.
	// It is never retried.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnreachable indicates the endpoint could not be contacted at all.
	ErrUnreachable = errors.New("endpoint unreachable")
)

// APIError represents an unexpected HTTP status from a remote service.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap classifies the status so errors.Is works against the sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthError
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrTransient
	}
	return nil
}

// RateLimitError is a 429 response, carrying the server's retry hint if it sent one.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded (retry after %s)", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Service)
}

// Unwrap exposes ErrRateLimited and, when a hint is present, the backoff
// retry-after signal so the retry loop waits as long as the server asked.
func (e *RateLimitError) Unwrap() []error {
	errs := []error{ErrRateLimited}
	if e.RetryAfter > 0 {
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		errs = append(errs, backoff.RetryAfter(secs))
	}
	return errs
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthError)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsMalformed returns true if the error indicates a schema mismatch.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// IsRetryable returns true for errors the retry loop should try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}

// Malformed wraps a decoding problem as a non-retryable schema error.
func Malformed(service, format string, args ...any) error {
	return fmt.Errorf("%w from %s: %s", ErrMalformedResponse, service, fmt.Sprintf(format, args...))
}
