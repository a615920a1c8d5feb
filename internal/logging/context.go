package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

func newTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceID returns the trace id stored by WithTraceContext, if any
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithTraceContext adds a trace ID to the context and returns a logger with it.
// The logger is derived from the one already in ctx.
func WithTraceContext(ctx context.Context) (context.Context, zerolog.Logger) {
	traceID := newTraceID()
	l := FromContext(ctx).With().Str("trace_id", traceID).Logger()
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// SelectionContext creates a logger context for one symbol/timeframe pair
func SelectionContext(base zerolog.Logger, symbol, timeframe string) zerolog.Logger {
	return base.With().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Logger()
}

// RequestContext creates a logger context for one issued pull request
func RequestContext(base zerolog.Logger, kind string, seq uint64) zerolog.Logger {
	return base.With().
		Str("request", kind).
		Uint64("seq", seq).
		Logger()
}

// StreamContext creates a logger context for push channel operations
func StreamContext(url string) zerolog.Logger {
	return WithComponent("stream").With().Str("url", url).Logger()
}

// APIContext creates a logger context for rendering-surface API requests
func APIContext(method, path string, statusCode int) zerolog.Logger {
	return WithComponent("api").With().
		Str("method", method).
		Str("path", path).
		Int("status_code", statusCode).
		Logger()
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) zerolog.Logger {
	return WithComponent("database").With().
		Str("operation", operation).
		Str("table", table).
		Logger()
}
