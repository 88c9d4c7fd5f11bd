// Package log holds the process-wide zap logger used by every bridge package.
package log

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _logger atomic.Pointer[zap.SugaredLogger]

func init() {
	SetLogger(zap.Must(zap.NewProduction()))
}

// SetLogger replaces the process logger. A nil logger installs a no-op logger.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	_logger.Store(logger.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

// Logger returns the current logger without the caller skip applied by the
// package helpers.
func Logger() *zap.Logger {
	return _logger.Load().Desugar().WithOptions(zap.AddCallerSkip(-1))
}

// New builds a production-style logger at the given level writing to stderr.
// Extra cores, such as a Hub, are teed in after the base core.
func New(level string, extra ...zapcore.Core) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}
	cores := append([]zapcore.Core{base.Core()}, extra...)
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ParseLevel accepts zap level names; the empty string means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(level)
}

func Debugf(template string, args ...any) {
	_logger.Load().Debugf(template, args...)
}

func Infof(template string, args ...any) {
	_logger.Load().Infof(template, args...)
}

func Warnf(template string, args ...any) {
	_logger.Load().Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	_logger.Load().Errorf(template, args...)
}

// Debugw logs a message with structured key/value pairs.
func Debugw(msg string, keysAndValues ...any) {
	_logger.Load().Debugw(msg, keysAndValues...)
}

func Infow(msg string, keysAndValues ...any) {
	_logger.Load().Infow(msg, keysAndValues...)
}

func Warnw(msg string, keysAndValues ...any) {
	_logger.Load().Warnw(msg, keysAndValues...)
}
