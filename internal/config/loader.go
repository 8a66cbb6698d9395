package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults returns the baseline configuration before file and flag merging.
func Defaults() *Config {
	return &Config{
		Provider:         ProviderOpenAI,
		MaxConcurrent:    5,
		RequestTimeout:   30 * time.Second,
		MaxAttempts:      3,
		RetryBaseDelay:   500 * time.Millisecond,
		RetryMaxDelay:    30 * time.Second,
		AdmissionTimeout: 2 * time.Minute,
		Storage:          "memory",
		LogLevel:         "info",
		LogFormat:        "console",
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1},
	}
}

// Load merges defaults, an optional config file, and flag overrides, in that
// order, then validates. Flags only override when explicitly set.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()
	cfg.ConfigFile = configPath

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if fs != nil {
		if err := applyFlagOverrides(cfg, fs); err != nil {
			return nil, err
		}
	}

	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Model = strings.TrimSpace(cfg.Model)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides copies explicitly-set flag values onto cfg, overriding
// file settings.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	overrides := []struct {
		name  string
		apply func() error
	}{
		{"name", stringFlag(fs, "name", &cfg.RunName)},
		{"cases", stringFlag(fs, "cases", &cfg.CasesFile)},
		{"provider", stringFlag(fs, "provider", &cfg.Provider)},
		{"model", stringFlag(fs, "model", &cfg.Model)},
		{"base-url", stringFlag(fs, "base-url", &cfg.BaseURL)},
		{"api-key", stringFlag(fs, "api-key", &cfg.APIKey)},
		{"keys-file", stringFlag(fs, "keys-file", &cfg.KeysFile)},
		{"system-prompt", stringFlag(fs, "system-prompt", &cfg.SystemPrompt)},
		{"max-tokens", intFlag(fs, "max-tokens", &cfg.MaxTokens)},
		{"temperature", float64Flag(fs, "temperature", &cfg.Temperature)},
		{"concurrency", intFlag(fs, "concurrency", &cfg.MaxConcurrent)},
		{"timeout", durationFlag(fs, "timeout", &cfg.RequestTimeout)},
		{"rate", intFlag(fs, "rate", &cfg.RatePerSecond)},
		{"max-attempts", intFlag(fs, "max-attempts", &cfg.MaxAttempts)},
		{"retry-base-delay", durationFlag(fs, "retry-base-delay", &cfg.RetryBaseDelay)},
		{"retry-max-delay", durationFlag(fs, "retry-max-delay", &cfg.RetryMaxDelay)},
		{"rate-per-minute", intFlag(fs, "rate-per-minute", &cfg.RatePerMinute)},
		{"rate-per-hour", intFlag(fs, "rate-per-hour", &cfg.RatePerHour)},
		{"admission-timeout", durationFlag(fs, "admission-timeout", &cfg.AdmissionTimeout)},
		{"storage", stringFlag(fs, "storage", &cfg.Storage)},
		{"threshold", stringSliceFlag(fs, "threshold", &cfg.Thresholds)},
		{"json-output", boolFlag(fs, "json-output", &cfg.JSONOutput)},
		{"dashboard", boolFlag(fs, "dashboard", &cfg.Dashboard)},
		{"output", stringFlag(fs, "output", &cfg.OutputFile)},
		{"log-level", stringFlag(fs, "log-level", &cfg.LogLevel)},
		{"log-format", stringFlag(fs, "log-format", &cfg.LogFormat)},
	}
	for _, o := range overrides {
		if fs.Lookup(o.name) == nil || !fs.Changed(o.name) {
			continue
		}
		if err := o.apply(); err != nil {
			return err
		}
	}
	return nil
}

func stringFlag(fs *pflag.FlagSet, name string, dst *string) func() error {
	return func() error {
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
		return nil
	}
}

func intFlag(fs *pflag.FlagSet, name string, dst *int) func() error {
	return func() error {
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func float64Flag(fs *pflag.FlagSet, name string, dst *float64) func() error {
	return func() error {
		val, err := fs.GetFloat64(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func durationFlag(fs *pflag.FlagSet, name string, dst *time.Duration) func() error {
	return func() error {
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func boolFlag(fs *pflag.FlagSet, name string, dst *bool) func() error {
	return func() error {
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}

func stringSliceFlag(fs *pflag.FlagSet, name string, dst *[]string) func() error {
	return func() error {
		val, err := fs.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
}
