// Package logging wraps log/slog with correlation fields and secret
// redaction.
package logging

import (
	"context"
	"log/slog"
	"os"
	"regexp"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	jobIDKey     ctxKey = "job_id"
	channelKey   ctxKey = "channel"
)

// Config controls the base logger's format and redaction behavior.
type Config struct {
	Level          string
	JSON           bool
	AddSource      bool
	RedactPatterns []string
}

// DefaultRedactPatterns catches common secret shapes in a record's message
// text so they never reach log output verbatim there; attribute values are
// not scrubbed.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|token|secret|password)\s*[=:]\s*\S+`,
	`Bearer\s+[A-Za-z0-9._-]+`,
}

// Logger wraps *slog.Logger with a redacting handler.
type Logger struct {
	*slog.Logger
	redacts []*regexp.Regexp
}

// New builds the base logger from Config.
func New(cfg Config) *Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	patterns := cfg.RedactPatterns
	if patterns == nil {
		patterns = DefaultRedactPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	base := &redactingHandler{Handler: handler, redacts: compiled}
	return &Logger{Logger: slog.New(base), redacts: compiled}
}

// WithSession returns a child logger carrying the session-id field.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{Logger: l.Logger.With("session_id", sessionID), redacts: l.redacts}
}

// WithComponent returns a child logger tagged with the owning component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name), redacts: l.redacts}
}

// ContextWithSession stashes a session-id for downstream log enrichment.
func ContextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionFromContext recovers a session-id stashed by ContextWithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

type redactingHandler struct {
	slog.Handler
	redacts []*regexp.Regexp
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := r.Message
	for _, re := range h.redacts {
		msg = re.ReplaceAllString(msg, "[redacted]")
	}
	r.Message = msg
	return h.Handler.Handle(ctx, r)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{Handler: h.Handler.WithAttrs(attrs), redacts: h.redacts}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{Handler: h.Handler.WithGroup(name), redacts: h.redacts}
}
