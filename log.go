package nativeref

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEnv is the environment variable read by LoggerFromEnv.
// Accepted values: debug, info, warn, error. Unset or invalid means silent.
const LogEnv = "NATIVEREF_LOG"

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// Logger returns the package logger. It is a no-op logger unless SetLogger
// has been called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger. Pass nil to restore the no-op logger.
// Reclaimers created afterwards without Config.Logger use it.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// LoggerFromEnv builds a JSON logger on stderr at the level named by
// NATIVEREF_LOG, or a no-op logger when the variable is unset or invalid.
func LoggerFromEnv() *zap.Logger {
	v := strings.TrimSpace(os.Getenv(LogEnv))
	if v == "" {
		return zap.NewNop()
	}
	level, err := zapcore.ParseLevel(v)
	if err != nil {
		return zap.NewNop()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("nativeref")
}
