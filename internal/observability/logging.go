package observability

import (
	"context"
	"maps"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/model"
)

type loggerKey struct{}

// NewLogger builds the JSON process logger.
//
// Level conventions:
//   - error: infrastructure failures, panics, a card or metric that failed to load
//   - warn:  degraded output (badge omitted, cache store unreachable), 4xx responses
//   - info:  lifecycle (boot, definitions loaded, shutdown), request completion
//   - debug: cache traffic, authorization decisions
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeDuration = zapcore.MillisDurationEncoder

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the caller's
// identity, when the context carries one.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("correlation_id", rctx.CorrelationID),
	}
	if rctx.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", rctx.TenantID))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"authorization": true,
}

// Redact returns a copy of body with sensitive keys masked, for debug logs
// of user-submitted payloads such as preferences.
func Redact(body map[string]any, extra ...string) map[string]any {
	if body == nil {
		return nil
	}
	mask := maps.Clone(sensitiveKeys)
	for _, k := range extra {
		mask[k] = true
	}
	return redact(body, mask)
}

func redact(body map[string]any, mask map[string]bool) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		switch {
		case mask[k]:
			out[k] = "[REDACTED]"
		case isMap(v):
			out[k] = redact(v.(map[string]any), mask)
		default:
			out[k] = v
		}
	}
	return out
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
