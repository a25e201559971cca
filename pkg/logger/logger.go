// Package logger builds the slog logger shared by the Hikma commands and
// carries run-scoped attributes through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	corpusKey
)

// timeLayout is RFC 3339 with milliseconds.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const redacted = "***REDACTED***"

// sensitive attribute keys, matched case-insensitively.
var sensitive = []string{"api_key", "apikey", "password", "secret", "token"}

type Config struct {
	Level     string
	Format    string // "text" or "json" (default)
	AddSource bool
	// Output defaults to stderr; stdout is reserved for command output.
	Output io.Writer
}

// Logger is a *slog.Logger with chainable helpers that keep the wrapper type.
type Logger struct {
	*slog.Logger
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		return slog.String(a.Key, a.Value.Time().Format(timeLayout))
	}
	if slices.Contains(sensitive, strings.ToLower(a.Key)) {
		return slog.String(a.Key, redacted)
	}
	return a
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default is an info-level JSON logger on stderr.
func Default() *Logger {
	return New(Config{Level: "info"})
}

// Discard drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithCorpus tags ctx with the corpus unit in progress (a book slug or surah).
func WithCorpus(ctx context.Context, unit string) context.Context {
	return context.WithValue(ctx, corpusKey, unit)
}

// WithContext attaches the run ID and corpus unit stored in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var args []any
	if v, _ := ctx.Value(runIDKey).(string); v != "" {
		args = append(args, "run_id", v)
	}
	if v, _ := ctx.Value(corpusKey).(string); v != "" {
		args = append(args, "corpus", v)
	}
	if len(args) == 0 {
		return l
	}
	return l.with(args...)
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithError returns l unchanged for a nil error.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// WithFields attaches fields in key order.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// SetDefault installs l as the slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}
