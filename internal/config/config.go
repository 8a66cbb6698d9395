package config

import (
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by the adapter factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"
)

// Config is the full run configuration, merged from file settings and flag
// overrides before validation.
type Config struct {
	RunName   string `mapstructure:"run_name"`
	CasesFile string `mapstructure:"cases_file"`

	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	KeysFile     string  `mapstructure:"keys_file"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`

	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  int           `mapstructure:"rate_per_second"`

	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`

	RatePerMinute    int           `mapstructure:"rate_limit_per_minute"`
	RatePerHour      int           `mapstructure:"rate_limit_per_hour"`
	AdmissionTimeout time.Duration `mapstructure:"admission_timeout"`

	Storage    string   `mapstructure:"storage"`
	Thresholds []string `mapstructure:"thresholds"`

	JSONOutput bool   `mapstructure:"json_output"`
	Dashboard  bool   `mapstructure:"dashboard"`
	OutputFile string `mapstructure:"output_file"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Tracing TracingConfig `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Protocol   string  `mapstructure:"protocol"` // "grpc" or "http"
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// ValidationError carries every issue found so the user can fix them in one
// pass.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case ProviderOpenAI, ProviderAnthropic, ProviderLocal:
	case "":
		issues = append(issues, "provider is required")
	default:
		issues = append(issues, fmt.Sprintf("provider must be one of openai, anthropic, local; got %q", c.Provider))
	}

	if strings.TrimSpace(c.Model) == "" {
		issues = append(issues, "model is required")
	}
	if c.MaxConcurrent < 1 {
		issues = append(issues, "max_concurrent must be >= 1")
	}
	if c.RequestTimeout < 0 {
		issues = append(issues, "request_timeout must be >= 0")
	}
	if c.RatePerSecond < 0 {
		issues = append(issues, "rate_per_second must be >= 0")
	}
	if c.MaxAttempts < 1 {
		issues = append(issues, "max_attempts must be >= 1")
	}
	if c.RetryBaseDelay < 0 {
		issues = append(issues, "retry_base_delay must be >= 0")
	}
	if c.RetryMaxDelay < 0 {
		issues = append(issues, "retry_max_delay must be >= 0")
	}
	if c.RetryMaxDelay > 0 && c.RetryBaseDelay > c.RetryMaxDelay {
		issues = append(issues, "retry_base_delay must not exceed retry_max_delay")
	}
	if c.RatePerMinute < 0 {
		issues = append(issues, "rate_limit_per_minute must be >= 0")
	}
	if c.RatePerHour < 0 {
		issues = append(issues, "rate_limit_per_hour must be >= 0")
	}
	if c.AdmissionTimeout < 0 {
		issues = append(issues, "admission_timeout must be >= 0")
	}
	if c.MaxTokens < 0 {
		issues = append(issues, "max_tokens must be >= 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		issues = append(issues, "temperature must be between 0 and 2")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			issues = append(issues, fmt.Sprintf("tracing.protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			issues = append(issues, "tracing.sample_rate must be between 0 and 1")
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
