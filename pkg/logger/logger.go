// Package logger wraps go.uber.org/zap behind the same small call-site API
// the rest of the codebase already expects: Init, Debug, Info, Warn, Error.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.SugaredLogger

// Init builds the process-wide logger from the LOG_LEVEL environment
// variable (debug|info|warn|error, default info). Must be called once
// before any Debug/Info/Warn/Error call; until then those calls are no-ops.
func Init() {
	level := levelFromEnv(os.Getenv("LOG_LEVEL"))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		// Fall back to zap's example logger rather than leaving base nil;
		// a misconfigured encoder should not take down the whole process.
		l = zap.NewExample()
	}
	base = l.Sugar()
}

func levelFromEnv(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fields is a convenience alias for structured key/value pairs passed to
// Debug, Info, Warn and Error below.
type Fields = []interface{}

func Debug(msg string, fields ...interface{}) {
	if base != nil {
		base.Debugw(msg, fields...)
	}
}

func Info(msg string, fields ...interface{}) {
	if base != nil {
		base.Infow(msg, fields...)
	}
}

func Warn(msg string, fields ...interface{}) {
	if base != nil {
		base.Warnw(msg, fields...)
	}
}

func Error(msg string, fields ...interface{}) {
	if base != nil {
		base.Errorw(msg, fields...)
	}
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
