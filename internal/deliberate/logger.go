package deliberate

import (
	"sync"

	"github.com/conclave-labs/conclave/internal/scheduler"
)

// pkgLogger is the package-level debug logger for deliberation tracing.
var pkgLogger *scheduler.DebugLogger
var pkgLoggerMu sync.RWMutex

// SetDebugLogger installs the package-level logger used by the engine.
func SetDebugLogger(l *scheduler.DebugLogger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = l
}

// debugLog writes a message using the package-level logger.
func debugLog(format string, args ...interface{}) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	if l != nil {
		l.Log(format, args...)
	}
}
