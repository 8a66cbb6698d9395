// Package adapter provides the model backend boundary. Each adapter issues a
// single HTTP call per Execute, translates provider faults into the shared
// error taxonomy, and never retries; retry and rate limiting live above it.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Params are the per-call generation settings.
type Params struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// Response is a successful model completion.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Adapter executes one prompt against a model backend. Implementations must
// honor ctx cancellation and deadlines and must not retry internally.
type Adapter interface {
	Execute(ctx context.Context, prompt string, params Params) (*Response, error)
	Provider() string
}

// Config holds the settings shared by the HTTP adapters.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// New builds an adapter for the named provider.
func New(provider string, cfg Config) (Adapter, error) {
	switch strings.ToLower(provider) {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "local":
		return NewLocal(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// statusError maps a non-2xx provider response onto the error taxonomy.
func statusError(provider string, status int, code, message string, hdr http.Header) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Provider: provider, Message: message}
	case http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(hdr)}
	default:
		return &ProviderError{Provider: provider, StatusCode: status, Code: code, Message: message}
	}
}

// parseRetryAfter reads a delay-seconds Retry-After header. HTTP-date form is
// ignored.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
		return d
	}
	return 0
}
