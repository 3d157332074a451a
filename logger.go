package authkit

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{sugar: l.Sugar()}
}

// NewLogger builds a production zap logger at the given level. Unknown
// levels fall back to info.
func NewLogger(level string, json bool) (Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// NopLogger discards everything.
func NopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}

func defaultLogger() Logger {
	return NopLogger()
}

func (l *zapLogger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

func (l *zapLogger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l *zapLogger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

func (l *zapLogger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
