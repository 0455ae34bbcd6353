package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/model"
)

type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Level conventions:
//   - error: GraphQL transport failures, store outages, 5xx responses
//   - warn:  4xx responses, open circuit breaker, save/delete failures
//   - info:  request summary, admin meta builds, bulk delete outcomes
//   - debug: dropped URL parameters, cache activity, generated documents
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// RequestLogger returns a logger enriched with RequestContext fields.
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

var sensitiveFragments = []string{"password", "secret", "token", "apikey", "api_key"}

// IsSensitivePath reports whether a field path looks like it holds a
// credential.
func IsSensitivePath(path string) bool {
	p := strings.ToLower(path)
	for _, frag := range sensitiveFragments {
		if strings.Contains(p, frag) {
			return true
		}
	}
	return false
}

// RedactInput returns a copy of a form input or GraphQL variables map with
// credential-like members replaced by "[REDACTED]". Intended for debug
// logging only.
func RedactInput(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	result := make(map[string]any, len(input))
	for k, v := range input {
		switch {
		case IsSensitivePath(k):
			result[k] = "[REDACTED]"
		default:
			if nested, ok := v.(map[string]any); ok {
				result[k] = RedactInput(nested)
			} else {
				result[k] = v
			}
		}
	}
	return result
}
