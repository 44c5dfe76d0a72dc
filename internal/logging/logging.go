// Package logging builds the zap logger used by the core packages and carries
// a per-operation logger through context.Context.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxLoggerKey struct{}

var (
	baseLogger = zap.NewNop()
	hostName   = "unknown"
)

func init() {
	if h, err := os.Hostname(); err == nil && h != "" {
		hostName = h
	}
}

// New builds a logger writing to stderr. format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("invalid log format %q (want console or json)", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.With(zap.String("host", hostName)), nil
}

// SetBase replaces the fallback logger returned when a context carries none
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseLogger = l
}

// Base returns the fallback logger
func Base() *zap.Logger {
	return baseLogger
}

// WithLogger stores l in ctx
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or the base logger
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return baseLogger
	}
	if l, ok := ctx.Value(ctxLoggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return baseLogger
}

// StartOperation derives a logger tagged with a fresh operation id and the
// given fields, and returns a context carrying it.
func StartOperation(ctx context.Context, op string, fields ...zap.Field) (context.Context, *zap.Logger) {
	fields = append([]zap.Field{
		zap.String("op", op),
		zap.String("op_id", uuid.NewString()),
	}, fields...)
	l := FromContext(ctx).With(fields...)
	return WithLogger(ctx, l), l
}
