package isolate

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger   *zap.Logger
	loggerMu sync.Mutex
)

// Logger returns the package logger. It is a no-op logger unless
// SetLogger was called.
func Logger() *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// SetLogger installs the logger returned by Logger. Isolates created
// afterwards without WithLogger pick it up.
func SetLogger(log *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = log
}
