package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init builds a zerolog logger writing JSON (default) or human-readable text
// to out, tags every line with the service name and installs it as the
// package-level logger. Unknown levels fall back to info.
func Init(service, format, level string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	format = strings.ToLower(strings.TrimSpace(format))

	var w io.Writer
	switch format {
	case "text", "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: out != os.Stderr}
	default:
		w = out
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger

	if format != "" && format != "json" && format != "text" && format != "console" {
		logger.Warn().Str("format", format).Msg("unknown log format, defaulting to json")
	}
	return logger
}

// OpenFile opens path for appending log lines. An empty path yields
// io.Discard so callers that own the terminal stay quiet.
func OpenFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
