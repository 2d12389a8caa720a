package logx

import (
	"context"
	"fmt"
)

// Entry accumulates fields, an error and structured data before being
// written at a level. Entries are not safe for concurrent use; build one per
// log line.
type Entry struct {
	logger *Logger
	fields Fields
	data   interface{}
	err    error
}

func newEntry(logger *Logger) *Entry {
	return &Entry{
		logger: logger,
		fields: make(Fields),
	}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	e.fields[key] = value
	return e
}

func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError records err; its message is also written as the "error" field.
func (e *Entry) WithError(err error) *Entry {
	e.err = err
	if err != nil {
		e.fields["error"] = err.Error()
	}
	return e
}

// WithContext adds the request scoped fields carried by ctx. Fields already
// set on the entry take precedence.
func (e *Entry) WithContext(ctx context.Context) *Entry {
	for k, v := range contextFields(ctx) {
		if _, exists := e.fields[k]; !exists {
			e.fields[k] = v
		}
	}
	return e
}

func (e *Entry) WithStruct(data interface{}) *Entry {
	e.data = data
	return e
}

func (e *Entry) write(level Level, msg string) {
	e.logger.log(level, msg, e.fields, e.data, e.err)
	if level == LevelFatal {
		e.logger.exit(1)
	}
}

func (e *Entry) Trace(msg string) { e.write(LevelTrace, msg) }
func (e *Entry) Debug(msg string) { e.write(LevelDebug, msg) }
func (e *Entry) Info(msg string)  { e.write(LevelInfo, msg) }
func (e *Entry) Warn(msg string)  { e.write(LevelWarn, msg) }
func (e *Entry) Error(msg string) { e.write(LevelError, msg) }

// Fatal logs and exits the process with status 1.
func (e *Entry) Fatal(msg string) { e.write(LevelFatal, msg) }

func (e *Entry) Tracef(format string, args ...interface{}) {
	e.write(LevelTrace, fmt.Sprintf(format, args...))
}

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.write(LevelDebug, fmt.Sprintf(format, args...))
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.write(LevelInfo, fmt.Sprintf(format, args...))
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.write(LevelWarn, fmt.Sprintf(format, args...))
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.write(LevelError, fmt.Sprintf(format, args...))
}

func (e *Entry) Fatalf(format string, args ...interface{}) {
	e.write(LevelFatal, fmt.Sprintf(format, args...))
}
