// Package logging builds the zerolog loggers used across varbatch and carries
// them, together with a trace ID, through context.Context.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Output and format names accepted in Config.
const (
	FormatJSON    = "json"
	FormatConsole = "console"

	OutputStderr = "stderr"
	OutputStdout = "stdout"
	OutputFile   = "file"
)

// Config describes where and how to log.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
	Caller bool
}

// LogPathResult is the outcome of NewLoggerWithPath. When a file was
// requested but could not be opened, the logger falls back to stderr and
// FallbackUsed/FallbackReason explain why.
type LogPathResult struct {
	Logger         zerolog.Logger
	UsingFile      bool
	FilePath       string
	FallbackUsed   bool
	FallbackReason string

	file *os.File
}

// Close releases the log file, if one was opened.
func (r *LogPathResult) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// NewLogger returns a logger for cfg, ignoring file fallback details.
func NewLogger(cfg Config) zerolog.Logger {
	return NewLoggerWithPath(cfg).Logger
}

// NewLoggerWithPath builds a logger for cfg and reports which sink it uses.
func NewLoggerWithPath(cfg Config) LogPathResult {
	var result LogPathResult

	var out io.Writer = os.Stderr
	switch cfg.Output {
	case OutputStdout:
		out = os.Stdout
	case OutputFile:
		if cfg.File == "" {
			result.FallbackUsed = true
			result.FallbackReason = "no log file configured"
			break
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			result.FallbackUsed = true
			result.FallbackReason = fmt.Sprintf("creating log directory: %v", err)
			break
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			result.FallbackUsed = true
			result.FallbackReason = fmt.Sprintf("opening log file: %v", err)
			break
		}
		out = f
		result.file = f
		result.UsingFile = true
		result.FilePath = cfg.File
	}

	result.Logger = NewWriterLogger(out, cfg)
	return result
}

// NewWriterLogger builds a logger writing to w with cfg's level and format.
// Worker processes use it to log into their in-memory diagnostic buffer.
func NewWriterLogger(w io.Writer, cfg Config) zerolog.Logger {
	if cfg.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel parses level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ComponentLogger tags every event from the returned logger with component.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// PrintLogPathMessage tells the user where logs are going.
func PrintLogPathMessage(w io.Writer, path string) {
	_, _ = fmt.Fprintf(w, "Logging to %s\n", path)
}

// PrintFallbackWarning tells the user file logging could not be enabled.
func PrintFallbackWarning(w io.Writer, reason string) {
	_, _ = fmt.Fprintf(w, "Warning: file logging unavailable (%s), logging to stderr\n", reason)
}
