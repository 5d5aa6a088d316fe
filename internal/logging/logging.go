package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the root logger.
type Config struct {
	Level       string // debug, info, warn, error
	Output      string // stdout, stderr, or a file path
	JSONFormat  bool
	IncludeFile bool
}

// New builds the root zerolog logger. Components derive their own loggers
// from it with .With().Str("component", ...).
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stdout
		} else {
			out = f
		}
	}

	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.IncludeFile {
		ctx = ctx.Caller()
	}

	return ctx.Logger()
}
