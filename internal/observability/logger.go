// Package observability wires the daemon's structured logger. It mirrors
// the call-site shape used throughout the original CLI (CLILogger.Error(...,
// zap.Error(err))), but exposes accessor functions instead of a bare
// package variable so tests can swap the logger without a data race.
package observability

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	sugar  *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
	sugar = l.Sugar()
}

// Logger returns the process-wide structured logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sugar returns the process-wide sugared logger, for call sites that
// prefer printf-style formatting with trailing key/value pairs.
func Sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetLevel reconfigures the logger at the given level (debug, info, warn,
// error) and development mode, matching the shape of a CLI --log-level flag.
func SetLevel(level string, development bool) error {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}

	var zl zap.AtomicLevel
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	cfg.Level = zl

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	logger = l
	sugar = l.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call on process shutdown.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	_ = l.Sync()
}
