// Package dlog provides the structured logger used across the association
// stack. Call sites depend on the Logger interface, never on zap directly,
// so the backing implementation can be swapped without touching callers.
package dlog

// Logger is the minimal structured-logging surface the stack depends on.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

// Options configures the zap-backed logger.
type Options struct {
	// LogFile is the path to the log file. If empty, logs go to stdout.
	LogFile string

	// MaxSizeMB is the max size in megabytes before the log file rotates.
	// Defaults to 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to retain.
	MaxBackups int

	// MaxAgeDays is the number of days to retain rotated files.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// Console also writes to stdout when LogFile is set.
	Console bool

	// Debug enables debug-level logging. Otherwise info level is used.
	Debug bool
}

var std Logger = New(Options{})

// Default returns the package-level default logger (stdout, info level).
func Default() Logger { return std }

// SetDefault replaces the package-level default logger.
func SetDefault(l Logger) {
	if l != nil {
		std = l
	}
}
