package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// AuthError indicates a bad or expired credential. Run-fatal: the runner
// aborts remaining admissions rather than spend quota against a known-bad key.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError indicates the provider rejected the call for quota reasons.
// Transient; the retried attempt must pass admission control again.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// NetworkError wraps transport-level failures. Transient.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError indicates the call hit the supplied per-request deadline.
// Transient.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Elapsed)
}

// ProviderError carries a provider-reported fault. 5xx-equivalent codes are
// transient, everything else (invalid request and friends) is permanent.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider error %d %s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

// Transient reports whether the fault is worth retrying.
func (e *ProviderError) Transient() bool { return e.StatusCode >= 500 }

// translateError maps transport and context failures onto the adapter error
// taxonomy. HTTP status translation happens in each adapter.
func translateError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Elapsed: timeout}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Elapsed: timeout}
	}
	return &NetworkError{Err: err}
}
