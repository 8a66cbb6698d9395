// Package retry decides whether a failed model call is worth another attempt
// and how long to wait before it.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/failproof/stressor/internal/adapter"
	"github.com/failproof/stressor/internal/ratelimit"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Policy holds the retry budget and backoff shape for one run.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter returns a random duration in [0, max). Replaceable for tests.
	Jitter func(max time.Duration) time.Duration
}

// NewPolicy builds a policy with defaults filled in for zero fields.
func NewPolicy(maxAttempts int, base, cap time.Duration) *Policy {
	p := &Policy{MaxAttempts: maxAttempts, BaseDelay: base, MaxDelay: cap}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	p.Jitter = defaultJitter
	return p
}

var jitterMu sync.Mutex

func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(rand.Int63n(int64(max)))
}

// Transient reports whether err is worth retrying. Auth and config faults are
// permanent; rate limiting, network faults, timeouts, admission timeouts, and
// 5xx provider errors are transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var (
		authErr    *adapter.AuthError
		rateErr    *adapter.RateLimitError
		netErr     *adapter.NetworkError
		timeoutErr *adapter.TimeoutError
		provErr    *adapter.ProviderError
		admitErr   *ratelimit.AdmissionTimeoutError
	)
	switch {
	case errors.As(err, &authErr):
		return false
	case errors.As(err, &rateErr), errors.As(err, &netErr),
		errors.As(err, &timeoutErr), errors.As(err, &admitErr):
		return true
	case errors.As(err, &provErr):
		return provErr.Transient()
	}
	return false
}

// Backoff computes the delay before re-attempting. attempt is zero-based:
// attempt 0 is the wait before the first retry.
//
//	delay = min(MaxDelay, BaseDelay * 2^attempt) + jitter[0, delay/2)
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.MaxDelay
	// Guard the shift: past 62 bits the doubling has long since hit the cap.
	if attempt < 62 {
		d := p.BaseDelay << uint(attempt)
		if d > 0 && d < p.MaxDelay {
			delay = d
		}
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = defaultJitter
	}
	return delay + jitter(delay/2)
}

// Sleep waits for the attempt's backoff or until ctx is done.
func (p *Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
