// ABOUTME: Leveled logfmt logger shared by the server, pipeline, and CLI.
// ABOUTME: Wraps go-kit log with a timestamp, caller, and a level filter parsed from config.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing to w, filtered to the given level name.
// Unknown level names fall back to info.
func New(w io.Writer, lvl string) log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return level.NewFilter(logger, levelOption(lvl))
}

// Nop returns a logger that discards everything.
func Nop() log.Logger {
	return log.NewNopLogger()
}

// Component tags every line from logger with component=name.
func Component(logger log.Logger, name string) log.Logger {
	if logger == nil {
		return Nop()
	}
	return log.With(logger, "component", name)
}

// ValidLevel reports whether name is a recognised level.
func ValidLevel(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "info", "warn", "warning", "error", "":
		return true
	}
	return false
}

func levelOption(name string) level.Option {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
