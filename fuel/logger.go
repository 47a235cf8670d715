package fuel

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the fuel package's logger instance, a no-op by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the fuel package's logger. Call before any ledger
// operations to take effect.
func SetLogger(l *zap.Logger) {
	logger = l
}
