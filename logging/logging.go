// Package logging builds the process-wide slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the log output format.
type Format string

const (
	// FormatPretty is colourful human-oriented output, for terminals.
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatJSON   Format = "json"
)

type Config struct {
	Level  Level
	Format Format

	// Output defaults to os.Stderr.
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatPretty,
		Output: os.Stderr,
	}
}

// New creates a logger. A LevelVar is returned so the level can be changed
// after the logger has been handed out.
func New(cfg Config) (*slog.Logger, *slog.LevelVar) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	lv := &slog.LevelVar{}
	lv.Set(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: lv})
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: lv})
	default:
		out, color := terminalOutput(cfg.Output)
		// Skip timestamps when running under systemd (it adds its own).
		underSystemd := os.Getenv("JOURNAL_STREAM") != ""
		handler = tint.NewHandler(out, &tint.Options{
			Level:      lv,
			TimeFormat: "15:04:05.000",
			NoColor:    !color,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return dropEmpty(a)
			},
		})
	}
	return slog.New(handler), lv
}

// terminalOutput wraps w for ANSI colours when it is a terminal.
func terminalOutput(w io.Writer) (io.Writer, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return w, false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return w, false
	}
	return colorable.NewColorable(f), true
}

func dropEmpty(a slog.Attr) slog.Attr {
	skip := false
	switch t := a.Value.Any().(type) {
	case string:
		skip = t == ""
	case time.Duration:
		skip = t == 0
	case nil:
		skip = true
	}
	if skip {
		return slog.Attr{}
	}
	return a
}

// Nop returns a logger that discards all output.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel parses "debug", "info", "warn"/"warning" or "error", in any case.
// An empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// ParseFormat parses "pretty", "text" or "json", in any case. An empty
// string means pretty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatPretty, FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatPretty, nil
	default:
		return FormatPretty, fmt.Errorf("invalid log format %q", s)
	}
}
