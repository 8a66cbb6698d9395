// Package logging configures the process-wide zerolog logger. Components ask
// for a named child logger via Component; libraries that take an injected
// logger default to zerolog.Nop().
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls global logger behavior.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string
	// Format is "json" or "console". Empty means console on a terminal.
	Format string
	// EnableCaller adds file:line to each event.
	EnableCaller bool
	// Output overrides the destination. Defaults to stderr.
	Output io.Writer
}

var root = zerolog.Nop()

// Init builds the root logger. Call once at process start, before Component.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	root = ctx.Logger()
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

// Root returns the root logger.
func Root() zerolog.Logger { return root }
