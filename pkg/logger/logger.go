// Package logger provides structured logging for media-mirror.
//
// Every reconciliation decision is logged as one line carrying the affected
// paths as fields. Output goes to an append-only log file shared by
// successive runs and, optionally, to standard output as well. Base fields
// such as the process id tell the runs apart.
//
// Example usage:
//
//	log := logger.New(logger.Config{
//	    Level:      "info",
//	    Output:     "/var/log/media-mirror.log",
//	    Format:     "text",
//	    Console:    true,
//	    TimeFormat: logger.DateTime,
//	    Fields:     []interface{}{"pid", os.Getpid()},
//	})
//	log.Info("symlink created", "source", src, "dest", dst)
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DateTime is the timestamp layout of the mirror log file.
const DateTime = "2006-01-02 15:04:05"

// Logger provides structured logging with levels and fields.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})

	// With returns a new logger with additional context fields.
	With(keysAndValues ...interface{}) Logger
}

// Config contains logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Output is the destination (stdout, stderr, or file path).
	Output string

	// Format is the output format (text, json).
	Format string

	// Console also writes every record to standard output.
	// Ignored when Output is already stdout.
	Console bool

	// TimeFormat is the layout for record timestamps. Empty keeps the
	// handler's RFC 3339 default.
	TimeFormat string

	// Fields are key-value pairs attached to every record.
	Fields []interface{}
}

// logger implements the Logger interface using slog.
type logger struct {
	slogger *slog.Logger
}

// New creates a new logger with the given configuration.
//
// If the output file cannot be opened the logger falls back to stderr and
// says so in its first record.
func New(cfg Config) Logger {
	writer, err := openOutput(cfg.Output)
	if err != nil {
		writer = os.Stderr
	}

	if cfg.Console && writer != os.Stdout {
		writer = io.MultiWriter(writer, os.Stdout)
	}

	slogger := slog.New(newHandler(writer, cfg))
	if len(cfg.Fields) > 0 {
		slogger = slogger.With(cfg.Fields...)
	}

	l := &logger{slogger: slogger}
	if err != nil {
		l.Warn("falling back to stderr", "error", err)
	}
	return l
}

// newHandler builds the slog handler for cfg's format, level and
// timestamp layout.
func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}
	if cfg.TimeFormat != "" {
		layout := cfg.TimeFormat
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				return slog.String(slog.TimeKey, a.Value.Time().Format(layout))
			}
			return a
		}
	}

	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Debug implements Logger.Debug.
func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.slogger.Debug(msg, keysAndValues...)
}

// Info implements Logger.Info.
func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.slogger.Info(msg, keysAndValues...)
}

// Warn implements Logger.Warn.
func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.slogger.Warn(msg, keysAndValues...)
}

// Error implements Logger.Error.
func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.slogger.Error(msg, keysAndValues...)
}

// With implements Logger.With.
func (l *logger) With(keysAndValues ...interface{}) Logger {
	return &logger{
		slogger: l.slogger.With(keysAndValues...),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info for unrecognized levels.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput returns the writer for an output destination: "stdout",
// "stderr" (or empty), or a file path opened for appending.
func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		// #nosec G304: output path comes from trusted config
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		return f, nil
	}
}

// Default returns a logger writing info and above as text to stderr.
func Default() Logger {
	return New(Config{
		Level:  "info",
		Output: "stderr",
		Format: "text",
	})
}

// Noop returns a logger that discards all log messages.
func Noop() Logger {
	return &logger{
		slogger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
