// Package ratelimit implements fixed-window admission control keyed by
// provider and credential. Both a per-minute and a per-hour cap apply; a call
// is admitted only when it fits in both windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AdmissionTimeoutError is returned when a caller waited longer than the
// configured admission deadline without winning a slot. It is transient: the
// case can be retried and will queue again.
type AdmissionTimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *AdmissionTimeoutError) Error() string {
	return fmt.Sprintf("rate limit admission timed out for %q after %s", e.Key, e.Waited)
}

// Limits are the per-key window caps. Zero means unlimited for that window.
type Limits struct {
	PerMinute int
	PerHour   int
}

type window struct {
	minuteStart time.Time
	minuteCount int
	hourStart   time.Time
	hourCount   int
}

// Limiter tracks fixed windows per key. Windows reset fully at each boundary,
// so up to 2x the per-minute cap can land within a 60s span straddling a
// boundary. That burst is accepted in exchange for predictable accounting.
type Limiter struct {
	mu               sync.Mutex
	limits           Limits
	windows          map[string]*window
	admissionTimeout time.Duration
	pollInterval     time.Duration

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPollInterval overrides how often blocked callers re-check the window.
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) { l.pollInterval = d }
}

// New builds a limiter. admissionTimeout bounds how long Acquire blocks;
// zero means wait until ctx is done.
func New(limits Limits, admissionTimeout time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limits:           limits,
		windows:          make(map[string]*window),
		admissionTimeout: admissionTimeout,
		pollInterval:     25 * time.Millisecond,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a slot is available under both windows, the admission
// timeout passes, or ctx is done. On success the slot is consumed; a consumed
// slot is never refunded, even if the subsequent call fails.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	start := l.now()

	var deadline <-chan time.Time
	if l.admissionTimeout > 0 {
		timer := time.NewTimer(l.admissionTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if l.tryAcquire(key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &AdmissionTimeoutError{Key: key, Waited: l.now().Sub(start)}
		case <-time.After(l.pollInterval):
		}
	}
}

// TryAcquire attempts a non-blocking admission.
func (l *Limiter) TryAcquire(key string) bool {
	return l.tryAcquire(key)
}

func (l *Limiter) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok {
		w = &window{minuteStart: now, hourStart: now}
		l.windows[key] = w
	}

	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.minuteCount = 0
	}
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.hourCount = 0
	}

	if l.limits.PerMinute > 0 && w.minuteCount >= l.limits.PerMinute {
		return false
	}
	if l.limits.PerHour > 0 && w.hourCount >= l.limits.PerHour {
		return false
	}

	w.minuteCount++
	w.hourCount++
	return true
}

// Usage reports the current counts for a key. Mostly for reporting.
func (l *Limiter) Usage(key string) (minute, hour int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return 0, 0
	}
	now := l.now()
	if now.Sub(w.minuteStart) < time.Minute {
		minute = w.minuteCount
	}
	if now.Sub(w.hourStart) < time.Hour {
		hour = w.hourCount
	}
	return minute, hour
}
