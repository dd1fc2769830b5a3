package linker

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger atomic.Pointer[zap.Logger]
	nop    = zap.NewNop()
)

// Logger returns the logger for resolution, cache and record status events.
// It discards everything until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nop
}

// SetLogger replaces the package logger. Nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
