// Package logging provides the process logger. It satisfies the Temporal SDK's
// key-value log.Logger so the same sink serves application code, activities
// and the Temporal client.
package logging

import (
	"fmt"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_ log.Logger     = (*Logger)(nil)
	_ log.WithLogger = (*Logger)(nil)
)

// Logger is a zap SugaredLogger speaking Temporal's log.Logger interface
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger for the given level (debug, info, warn, error) and
// format (json or console).
func New(level, format string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return NewFromZap(z), nil
}

// NewFromZap wraps an existing zap logger
func NewFromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewFromZap(zap.NewNop())
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.sugar.Debugw(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...interface{})  { l.sugar.Infow(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...interface{})  { l.sugar.Warnw(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.sugar.Errorw(msg, keyvals...) }

// With returns a child logger that always carries keyvals
func (l *Logger) With(keyvals ...interface{}) log.Logger {
	return &Logger{sugar: l.sugar.With(keyvals...)}
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
