package logx

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger(LoadFromEnv()))
}

// SetDefaultLogger replaces the logger behind the package level functions.
func SetDefaultLogger(logger *Logger) {
	defaultLogger.Store(logger)
}

func GetDefaultLogger() *Logger {
	return defaultLogger.Load()
}

func SetLevel(level Level) {
	GetDefaultLogger().SetLevel(level)
}

func SetOutput(w io.Writer) {
	GetDefaultLogger().SetOutput(w)
}

func std() *Entry {
	return newEntry(GetDefaultLogger())
}

// ============================================================================
// Simple Logging Functions
// ============================================================================

func Trace(msg string) { std().write(LevelTrace, msg) }
func Debug(msg string) { std().write(LevelDebug, msg) }
func Info(msg string)  { std().write(LevelInfo, msg) }
func Warn(msg string)  { std().write(LevelWarn, msg) }
func Error(msg string) { std().write(LevelError, msg) }

// Fatal logs and exits the process with status 1.
func Fatal(msg string) { std().write(LevelFatal, msg) }

// ============================================================================
// Formatted Logging Functions
// ============================================================================

func Tracef(format string, args ...interface{}) {
	std().write(LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	std().write(LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	std().write(LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	std().write(LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	std().write(LevelError, fmt.Sprintf(format, args...))
}

func Fatalf(format string, args ...interface{}) {
	std().write(LevelFatal, fmt.Sprintf(format, args...))
}

// ============================================================================
// Structured Logging
// ============================================================================

func WithFields(fields Fields) *Entry {
	return std().WithFields(fields)
}

func WithField(key string, value interface{}) *Entry {
	return std().WithField(key, value)
}

// WithContext starts an entry carrying the request id, tenant id and any
// fields attached with ContextWithFields.
func WithContext(ctx context.Context) *Entry {
	return std().WithContext(ctx)
}

func WithError(err error) *Entry {
	return std().WithError(err)
}

func WithStruct(data interface{}) *Entry {
	return std().WithStruct(data)
}
