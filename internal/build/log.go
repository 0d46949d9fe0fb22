// Package build provides the logging infrastructure shared by the daemon and
// CLI: a fan-out handler set that feeds both the console and a rotating,
// gzip-compressed log file, plus subsystem logger construction.
package build

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// Subsystem tags for the detector's loggers.
const (
	// SubProbe tags the detection coordinator.
	SubProbe = "PROB"

	// SubIntercept tags the network interceptor.
	SubIntercept = "ICPT"

	// SubLedger tags the persistence layer.
	SubLedger = "LDGR"

	// SubBridge tags the browser-bridge feed and action trigger.
	SubBridge = "BRDG"
)

// LogConfig bundles the settings for logger construction.
type LogConfig struct {
	// Level is the log level applied to all handlers.
	Level btclog.Level

	// LogDir enables file logging when non-empty.
	LogDir string

	// Console is the console writer. Defaults to stderr when nil.
	Console io.Writer
}

// NewLoggerFactory builds the shared handler set and returns a factory for
// subsystem loggers. The returned closer flushes the file rotator; callers
// should invoke it on shutdown.
func NewLoggerFactory(cfg LogConfig) (func(tag string) btclogv2.Logger,
	func() error, error) {

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []btclogv2.Handler{
		btclogv2.NewDefaultHandler(console),
	}
	closer := func() error { return nil }

	if cfg.LogDir != "" {
		writer := NewRotatingLogWriter()
		err := writer.InitLogRotator(&LogRotatorConfig{
			LogDir:         cfg.LogDir,
			MaxLogFiles:    DefaultMaxLogFiles,
			MaxLogFileSize: DefaultMaxLogFileSize,
		})
		if err != nil {
			return nil, nil, err
		}

		handlers = append(handlers, btclogv2.NewDefaultHandler(writer))
		closer = writer.Close
	}

	set := NewHandlerSet(handlers...)
	set.SetLevel(cfg.Level)

	factory := func(tag string) btclogv2.Logger {
		return btclogv2.NewSLogger(set.SubSystem(tag))
	}

	return factory, closer, nil
}

// NewTestLogger returns a logger that discards all output, for use in tests
// and as a default when callers pass no logger.
func NewTestLogger() btclogv2.Logger {
	return btclogv2.NewSLogger(btclogv2.NewDefaultHandler(io.Discard))
}
