package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/failproof/stressor/internal/adapter"
	"github.com/failproof/stressor/internal/ratelimit"
	"github.com/failproof/stressor/internal/retry"
	"github.com/failproof/stressor/internal/vulnscan"
)

// ConfigError reports invalid runner options. When Run returns one, the run
// never started and no results were produced.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid runner options: %s", strings.Join(e.Issues, "; "))
}

// Options configure a Runner.
type Options struct {
	RunName string

	Adapter adapter.Adapter // model backend (required)
	Params  adapter.Params  // per-call generation settings

	MaxConcurrent  int           // worker goroutines; default 1
	RequestTimeout time.Duration // per-attempt deadline; default 30s

	Retry   *retry.Policy      // nil means retry.NewPolicy defaults
	Limiter *ratelimit.Limiter // optional provider admission control
	// LimiterKey identifies the (provider, credential) window. Defaults to
	// the adapter's provider name.
	LimiterKey string
	// Window limits recorded in the run's config snapshot. The Limiter
	// enforces them; these fields only document the run.
	RatePerMinute    int
	RatePerHour      int
	AdmissionTimeout time.Duration

	// RatePerSecond smooths dispatch on top of the window limiter. 0 means
	// no pacing.
	RatePerSecond  int
	LimiterFactory func(rps int) *rate.Limiter // injection point for tests

	Detector *vulnscan.Detector // nil disables vulnerability scanning

	Logger zerolog.Logger
	Tracer trace.Tracer
}

func (o *Options) normalize() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 1
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.Retry == nil {
		o.Retry = retry.NewPolicy(0, 0, 0)
	}
	if o.LimiterKey == "" && o.Adapter != nil {
		o.LimiterKey = o.Adapter.Provider()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("stressor")
	}
}

func (o *Options) validate() error {
	var issues []string
	if o.Adapter == nil {
		issues = append(issues, "adapter is required")
	}
	if o.Params.Model == "" {
		issues = append(issues, "model is required")
	}
	if o.MaxConcurrent < 0 {
		issues = append(issues, "max_concurrent must not be negative")
	}
	if o.RequestTimeout < 0 {
		issues = append(issues, "request_timeout must not be negative")
	}
	if o.RatePerSecond < 0 {
		issues = append(issues, "rate_per_second must not be negative")
	}
	if o.Retry != nil && o.Retry.MaxAttempts < 1 {
		issues = append(issues, "max_attempts must be at least 1")
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}
