// Package obslog implements the structured logger the Turn Engine, the
// Permission Gate, the Hook Pipeline, and the Task Manager all log
// through, grounded on
// _examples/haasonsaas-nexus/internal/observability/logging.go's
// Logger: a thin wrapper over log/slog adding context-field correlation
// and sensitive-data redaction, narrowed from that teacher's
// channel/user-facing context keys (request_id, channel, user_id) to
// this spec's session_id/tool_name correlation fields.
package obslog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ContextKey is the type for context keys this package reads to
// auto-attach correlation fields to every log record.
type ContextKey string

const (
	SessionIDKey ContextKey = "session_id"
	ToolNameKey  ContextKey = "tool_name"
)

// Config configures a Logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty = "info".
	Level string
	// Format is "json" or "text". Empty = "json".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource includes file:line in every record.
	AddSource bool
	// RedactPatterns are additional regexes appended to
	// DefaultRedactPatterns.
	RedactPatterns []string
}

// DefaultRedactPatterns covers the secret shapes most likely to leak
// into a log line from this domain: LLM API keys, bearer tokens, and
// generic secret-looking key=value pairs.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// Logger is the structured logger threaded through the engine's
// collaborators as an optional dependency — a nil *Logger is valid and
// every method on it is then a no-op, so components can log
// unconditionally without a presence check.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	level := levelFromString(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	patterns := append(append([]string{}, DefaultRedactPatterns...), cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithFields returns a derived Logger with args permanently attached.
func (l *Logger) WithFields(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }
func (l *Logger) Info(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelWarn, msg, args...) }
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l == nil {
		return
	}
	msg = l.redactString(msg)

	attrs := make([]any, 0, len(args)+4)
	if sid, ok := ctx.Value(SessionIDKey).(string); ok && sid != "" {
		attrs = append(attrs, "session_id", sid)
	}
	if tn, ok := ctx.Value(ToolNameKey).(string); ok && tn != "" {
		attrs = append(attrs, "tool_name", tn)
	}
	for _, a := range args {
		attrs = append(attrs, l.redactValue(a))
	}
	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	case []byte:
		return l.redactString(string(val))
	default:
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithSessionID returns a context carrying a session id for Logger to
// pick up automatically.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithToolName returns a context carrying a tool name for Logger to
// pick up automatically.
func WithToolName(ctx context.Context, toolName string) context.Context {
	return context.WithValue(ctx, ToolNameKey, toolName)
}
