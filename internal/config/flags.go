package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterRunFlags registers the flags shared by the run and dashboard
// commands on the provided flag set.
func RegisterRunFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("name", "", "Run name recorded in results")
	flags.String("cases", "", "Path to test cases file (JSON array or JSONL)")

	// Model backend flags
	flags.String("provider", "", "Model provider: openai, anthropic, or local")
	flags.StringP("model", "m", "", "Model name to test")
	flags.String("base-url", "", "Override the provider API base URL")
	flags.String("api-key", "", "API key (prefer env vars or --keys-file)")
	flags.String("keys-file", "", "Path to YAML file mapping providers to API keys")
	flags.String("system-prompt", "", "System prompt sent with every case")
	flags.Int("max-tokens", 0, "Max completion tokens per call (0 = provider default)")
	flags.Float64("temperature", 0, "Sampling temperature")

	// Orchestration flags
	flags.IntP("concurrency", "c", 5, "Max concurrently executing test cases")
	flags.Duration("timeout", 30*time.Second, "Per-attempt request timeout")
	flags.IntP("rate", "r", 0, "Dispatch pacing in cases per second (0 = unpaced)")

	// Retry flags
	flags.Int("max-attempts", 3, "Max attempts per case including the first")
	flags.Duration("retry-base-delay", 500*time.Millisecond, "Base backoff delay")
	flags.Duration("retry-max-delay", 30*time.Second, "Backoff delay cap")

	// Provider rate limit flags
	flags.Int("rate-per-minute", 0, "Provider requests per minute (0 = unlimited)")
	flags.Int("rate-per-hour", 0, "Provider requests per hour (0 = unlimited)")
	flags.Duration("admission-timeout", 2*time.Minute, "Max wait for a rate limit slot")

	// Output flags
	flags.String("storage", "memory", "Result store: memory, jsonl:<path>, or postgres:<dsn>")
	flags.StringSlice("threshold", nil, "Robustness thresholds (repeatable, e.g. 'success_rate:value >= 90')")
	flags.Bool("json-output", false, "Emit the final report as JSON")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.String("output", "", "Write the final report to a file")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")
}
