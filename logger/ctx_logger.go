package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// requestIDContextKey is the context key type used by WithRequestID.
type requestIDContextKey struct{}

// WithRequestID returns a context carrying a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext extracts the request id, empty when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger is a context-aware zap wrapper. The module is bound at creation;
// call sites only pass ctx.
type Logger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// InfoCtx logs at Info level, enriched from ctx.
func (l *Logger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrich(ctx, fields)...)
}

// Info logs at Info level without a context.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

// DebugCtx logs at Debug level, enriched from ctx.
func (l *Logger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrich(ctx, fields)...)
}

// Debug logs at Debug level without a context.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

// WarnCtx logs at Warn level, enriched from ctx.
func (l *Logger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrich(ctx, fields)...)
}

// Warn logs at Warn level without a context.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

// ErrorCtx logs at Error level, enriched from ctx.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Error(msg, l.enrich(ctx, fields)...)
}

// Error logs at Error level without a context.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// With returns a logger with preset fields (chainable).
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// GetZapLogger exposes the underlying *zap.Logger for third-party integration.
func (l *Logger) GetZapLogger() *zap.Logger {
	return l.base
}

// enrich adds app_name and the request id from ctx.
func (l *Logger) enrich(ctx context.Context, fields []zap.Field) []zap.Field {
	enriched := make([]zap.Field, 0, len(fields)+2)
	if l.config != nil && l.config.AppName != "" {
		enriched = append(enriched, zap.String("app_name", l.config.AppName))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		key := "request_id"
		if l.config != nil && l.config.RequestIDKey != "" {
			key = l.config.RequestIDKey
		}
		enriched = append(enriched, zap.String(key, id))
	}
	return append(enriched, fields...)
}

func stderr() *os.File {
	return os.Stderr
}
