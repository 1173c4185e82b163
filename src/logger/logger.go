package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// -----------------------------------------------------------------------------

// Log levels in ascending severity.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarning
	LevelError
)

// minLevel is process-wide so every named logger honors the configured floor.
var minLevel atomic.Int32

// SetLevel sets the global minimum level from its string name. Unknown names
// fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		minLevel.Store(LevelDebug)
	case "warning", "warn":
		minLevel.Store(LevelWarning)
	case "error":
		minLevel.Store(LevelError)
	default:
		minLevel.Store(LevelInfo)
	}
}

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	logger *log.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// Named returns a child logger sharing the same output.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   l.name + "." + name,
		logger: l.logger,
	}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	if minLevel.Load() > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] DEBUG: %s", l.name, msg)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable anomalies
func (l *Logger) Warning(format string, args ...interface{}) {
	if minLevel.Load() > LevelWarning {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] WARNING: %s", l.name, msg)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	if minLevel.Load() > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] INFO: %s", l.name, msg)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] ERROR: %s", l.name, msg)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] CRITICAL: %s", l.name, msg)
	os.Exit(1)
}
