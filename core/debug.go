package core

import (
	"log/slog"
	"strings"
	"sync"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

var (
	debugMu sync.RWMutex

	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugLevel is Info by default; set_debug style toggling lowers it to Debug
	debugLevel = new(slog.LevelVar)

	debugLogger = slog.New(slog.NewTextHandler(debugSink{}, &slog.HandlerOptions{Level: debugLevel}))
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug-level output
func SetDebugEnabled(enabled bool) {
	if enabled {
		debugLevel.Set(slog.LevelDebug)
	} else {
		debugLevel.Set(slog.LevelInfo)
	}
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugLevel.Level() <= slog.LevelDebug
}

// Logger returns the structured logger backed by the platform debug writer.
// Host programs usually pass their own *slog.Logger instead.
func Logger() *slog.Logger {
	return debugLogger
}

// debugSink turns slog text records into DebugWriter lines
type debugSink struct{}

func (debugSink) Write(p []byte) (int, error) {
	debugMu.RLock()
	w := debugPrintln
	debugMu.RUnlock()
	w(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
